package rest

import (
	"github.com/flowly/flowly/internal/core/graph"
)

type portRequest struct {
	ID    string      `json:"id" validate:"omitempty,max=128"`
	Name  string      `json:"name"`
	Limit graph.Limit `json:"limit"`
}

func (p *portRequest) config() *graph.PortConfig {
	if p == nil {
		return nil
	}
	return &graph.PortConfig{ID: p.ID, Name: p.Name, Limit: p.Limit}
}

type createNodeRequest struct {
	ID          string            `json:"id" validate:"omitempty,node_id"`
	Name        string            `json:"name"`
	X           *float64          `json:"x" validate:"required"`
	Y           *float64          `json:"y" validate:"required"`
	Data        map[string]any    `json:"data"`
	Input       *portRequest      `json:"input"`
	Output      *portRequest      `json:"output"`
	HTMLContent string            `json:"htmlContent"`
	ShowHeader  *bool             `json:"showHeader"`
	ReadOnly    bool              `json:"readOnly"`
	Theme       map[string]string `json:"theme"`
}

func (r *createNodeRequest) config() graph.NodeConfig {
	return graph.NodeConfig{
		ID:          r.ID,
		Name:        r.Name,
		X:           *r.X,
		Y:           *r.Y,
		Data:        r.Data,
		Input:       r.Input.config(),
		Output:      r.Output.config(),
		HTMLContent: r.HTMLContent,
		ShowHeader:  r.ShowHeader,
		ReadOnly:    r.ReadOnly,
		Theme:       r.Theme,
	}
}

type portPatchRequest struct {
	ID    *string      `json:"id" validate:"omitempty,min=1,max=128"`
	Name  *string      `json:"name"`
	Limit *graph.Limit `json:"limit"`
}

func (p *portPatchRequest) patch() *graph.PortPatch {
	if p == nil {
		return nil
	}
	return &graph.PortPatch{ID: p.ID, Name: p.Name, Limit: p.Limit}
}

type patchNodeRequest struct {
	Name        *string           `json:"name"`
	Data        map[string]any    `json:"data"`
	Input       *portPatchRequest `json:"input"`
	Output      *portPatchRequest `json:"output"`
	X           *float64          `json:"x"`
	Y           *float64          `json:"y"`
	HTMLContent *string           `json:"htmlContent"`
	ShowHeader  *bool             `json:"showHeader"`
}

func (r *patchNodeRequest) patch() graph.NodePatch {
	return graph.NodePatch{
		Name:        r.Name,
		Data:        r.Data,
		Input:       r.Input.patch(),
		Output:      r.Output.patch(),
		X:           r.X,
		Y:           r.Y,
		HTMLContent: r.HTMLContent,
		ShowHeader:  r.ShowHeader,
	}
}

type positionRequest struct {
	X *float64 `json:"x" validate:"required"`
	Y *float64 `json:"y" validate:"required"`
}

type readOnlyRequest struct {
	ReadOnly *bool `json:"readOnly" validate:"required"`
}

type duplicateRequest struct {
	DX *float64 `json:"dx"`
	DY *float64 `json:"dy"`
}

type connectionRequest struct {
	SourceNodeID     string `json:"sourceNodeId" validate:"required,node_id"`
	SourceOutputID   string `json:"sourceOutputId" validate:"required,port_ref=SourceNodeID"`
	TargetNodeID     string `json:"targetNodeId" validate:"required,node_id"`
	TargetInputID    string `json:"targetInputId" validate:"required,port_ref=TargetNodeID"`
	LabelHTMLContent string `json:"labelHtmlContent"`
}

type labelRequest struct {
	LabelHTMLContent *string `json:"labelHtmlContent" validate:"required"`
}

type checkpointRequest struct {
	Label     string   `json:"label" validate:"max=256"`
	CreatedBy string   `json:"created_by" validate:"max=256"`
	Tags      []string `json:"tags" validate:"max=32,dive,min=1,max=64"`
}
