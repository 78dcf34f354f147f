package rest

import (
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/flowly/flowly/internal/core/checkpoint"
	"github.com/flowly/flowly/internal/core/graph"
	"github.com/flowly/flowly/pkg/serialization"
	"github.com/flowly/flowly/pkg/validation"
)

// getFlow handles GET /flow. ?format=yaml|msgpack selects another codec.
func (s *Server) getFlow(w http.ResponseWriter, r *http.Request) {
	s.mu.Lock()
	doc := s.store.ToDocument()
	s.mu.Unlock()

	format := r.URL.Query().Get("format")
	if format == "" || format == serialization.CodecJSON {
		respondJSON(w, http.StatusOK, doc)
		return
	}

	codec, err := serialization.CodecByName(format)
	if err != nil {
		respondError(w, http.StatusBadRequest, err.Error())
		return
	}
	data, err := codec.Encode(doc)
	if err != nil {
		s.respondDomainError(w, err)
		return
	}
	w.Header().Set("Content-Type", contentType(codec.Name()))
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write(data)
}

func contentType(codec string) string {
	switch codec {
	case serialization.CodecMsgPack:
		return "application/msgpack"
	case serialization.CodecYAML:
		return "application/yaml"
	default:
		return "application/json"
	}
}

// putFlow handles PUT /flow, replacing the whole graph.
func (s *Server) putFlow(w http.ResponseWriter, r *http.Request) {
	doc, _ := validation.Body[graph.Document](r)
	if err := validation.ValidateDocument(doc); err != nil {
		s.respondDomainError(w, err)
		return
	}

	s.mu.Lock()
	err := s.store.LoadDocument(doc)
	nodes, conns := s.store.NodeCount(), s.store.ConnectionCount()
	s.mu.Unlock()
	if err != nil {
		s.respondDomainError(w, err)
		return
	}
	respondJSON(w, http.StatusOK, map[string]int{"nodes": nodes, "connections": conns})
}

func (s *Server) setGlobalReadOnly(w http.ResponseWriter, r *http.Request) {
	req, _ := validation.Body[readOnlyRequest](r)
	s.mu.Lock()
	s.store.SetGlobalReadOnly(*req.ReadOnly)
	s.mu.Unlock()
	respondJSON(w, http.StatusOK, map[string]bool{"readOnly": *req.ReadOnly})
}

func (s *Server) listNodes(w http.ResponseWriter, r *http.Request) {
	s.mu.Lock()
	nodes := s.store.Nodes()
	s.mu.Unlock()
	respondJSON(w, http.StatusOK, nodes)
}

func (s *Server) createNode(w http.ResponseWriter, r *http.Request) {
	req, _ := validation.Body[createNodeRequest](r)
	s.mu.Lock()
	n, err := s.store.AddNode(req.config())
	s.mu.Unlock()
	if err != nil {
		s.respondDomainError(w, err)
		return
	}
	w.Header().Set("Location", "/nodes/"+n.ID)
	respondJSON(w, http.StatusCreated, n)
}

func (s *Server) getNode(w http.ResponseWriter, r *http.Request) {
	s.mu.Lock()
	n, ok := s.store.Node(chi.URLParam(r, "nodeID"))
	s.mu.Unlock()
	if !ok {
		respondError(w, http.StatusNotFound, graph.ErrNodeNotFound.Error())
		return
	}
	respondJSON(w, http.StatusOK, n)
}

func (s *Server) patchNode(w http.ResponseWriter, r *http.Request) {
	req, _ := validation.Body[patchNodeRequest](r)
	s.mu.Lock()
	n, err := s.store.UpdateNode(chi.URLParam(r, "nodeID"), req.patch())
	s.mu.Unlock()
	if err != nil {
		s.respondDomainError(w, err)
		return
	}
	respondJSON(w, http.StatusOK, n)
}

func (s *Server) deleteNode(w http.ResponseWriter, r *http.Request) {
	s.mu.Lock()
	err := s.store.RemoveNode(chi.URLParam(r, "nodeID"))
	s.mu.Unlock()
	if err != nil {
		s.respondDomainError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (s *Server) moveNode(w http.ResponseWriter, r *http.Request) {
	req, _ := validation.Body[positionRequest](r)
	id := chi.URLParam(r, "nodeID")
	s.mu.Lock()
	err := s.store.UpdateNodePosition(id, *req.X, *req.Y)
	s.mu.Unlock()
	if err != nil {
		s.respondDomainError(w, err)
		return
	}
	respondJSON(w, http.StatusOK, map[string]any{"id": id, "x": *req.X, "y": *req.Y})
}

func (s *Server) setNodeReadOnly(w http.ResponseWriter, r *http.Request) {
	req, _ := validation.Body[readOnlyRequest](r)
	id := chi.URLParam(r, "nodeID")
	s.mu.Lock()
	err := s.store.SetNodeReadOnly(id, *req.ReadOnly)
	s.mu.Unlock()
	if err != nil {
		s.respondDomainError(w, err)
		return
	}
	respondJSON(w, http.StatusOK, map[string]any{"id": id, "readOnly": *req.ReadOnly})
}

// duplicateNode handles POST /nodes/{id}/duplicate. The body is optional
// and defaults both offsets to graph.DefaultPasteOffset.
func (s *Server) duplicateNode(w http.ResponseWriter, r *http.Request) {
	var req duplicateRequest
	if err := json.NewDecoder(io.LimitReader(r.Body, 4096)).Decode(&req); err != nil && !errors.Is(err, io.EOF) {
		respondError(w, http.StatusBadRequest, "invalid JSON: "+err.Error())
		return
	}
	dx, dy := graph.DefaultPasteOffset, graph.DefaultPasteOffset
	if req.DX != nil {
		dx = *req.DX
	}
	if req.DY != nil {
		dy = *req.DY
	}

	s.mu.Lock()
	n, err := s.store.DuplicateNode(chi.URLParam(r, "nodeID"), dx, dy)
	s.mu.Unlock()
	if err != nil {
		s.respondDomainError(w, err)
		return
	}
	w.Header().Set("Location", "/nodes/"+n.ID)
	respondJSON(w, http.StatusCreated, n)
}

func (s *Server) nodeConnections(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "nodeID")
	s.mu.Lock()
	_, ok := s.store.Node(id)
	conns := s.store.ConnectionsOf(id)
	s.mu.Unlock()
	if !ok {
		respondError(w, http.StatusNotFound, graph.ErrNodeNotFound.Error())
		return
	}
	respondJSON(w, http.StatusOK, conns)
}

func (s *Server) nodeNeighbors(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "nodeID")
	s.mu.Lock()
	_, ok := s.store.Node(id)
	neighbors := s.store.Neighbors(id)
	s.mu.Unlock()
	if !ok {
		respondError(w, http.StatusNotFound, graph.ErrNodeNotFound.Error())
		return
	}
	respondJSON(w, http.StatusOK, neighbors)
}

func (s *Server) listConnections(w http.ResponseWriter, r *http.Request) {
	s.mu.Lock()
	conns := s.store.Connections()
	s.mu.Unlock()
	respondJSON(w, http.StatusOK, conns)
}

func (s *Server) createConnection(w http.ResponseWriter, r *http.Request) {
	req, _ := validation.Body[connectionRequest](r)
	s.mu.Lock()
	c, err := s.store.AddConnection(req.SourceNodeID, req.SourceOutputID, req.TargetNodeID, req.TargetInputID, req.LabelHTMLContent)
	s.mu.Unlock()
	if err != nil {
		s.respondDomainError(w, err)
		return
	}
	w.Header().Set("Location", "/connections/"+c.ID)
	respondJSON(w, http.StatusCreated, c)
}

func (s *Server) getConnection(w http.ResponseWriter, r *http.Request) {
	s.mu.Lock()
	c, ok := s.store.Connection(chi.URLParam(r, "connID"))
	s.mu.Unlock()
	if !ok {
		respondError(w, http.StatusNotFound, graph.ErrConnectionNotFound.Error())
		return
	}
	respondJSON(w, http.StatusOK, c)
}

func (s *Server) deleteConnection(w http.ResponseWriter, r *http.Request) {
	s.mu.Lock()
	err := s.store.RemoveConnection(chi.URLParam(r, "connID"))
	s.mu.Unlock()
	if err != nil {
		s.respondDomainError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (s *Server) setConnectionLabel(w http.ResponseWriter, r *http.Request) {
	req, _ := validation.Body[labelRequest](r)
	id := chi.URLParam(r, "connID")
	s.mu.Lock()
	err := s.store.UpdateConnectionLabel(id, *req.LabelHTMLContent)
	c, _ := s.store.Connection(id)
	s.mu.Unlock()
	if err != nil {
		s.respondDomainError(w, err)
		return
	}
	respondJSON(w, http.StatusOK, c)
}

// listCheckpoints handles GET /checkpoints?limit=&offset=&since=&before=.
// Times are RFC 3339.
func (s *Server) listCheckpoints(w http.ResponseWriter, r *http.Request) {
	filter, err := parseFilter(r)
	if err != nil {
		respondError(w, http.StatusBadRequest, err.Error())
		return
	}
	cps, err := s.checkpoints.List(r.Context(), filter)
	if err != nil {
		s.respondDomainError(w, err)
		return
	}
	out := make([]checkpointSummary, 0, len(cps))
	for _, cp := range cps {
		out = append(out, summarize(cp))
	}
	respondJSON(w, http.StatusOK, out)
}

func (s *Server) createCheckpoint(w http.ResponseWriter, r *http.Request) {
	req, _ := validation.Body[checkpointRequest](r)
	meta := checkpoint.Metadata{
		Source:    checkpoint.SourceManual,
		Label:     req.Label,
		CreatedBy: req.CreatedBy,
		Tags:      req.Tags,
	}

	s.mu.Lock()
	doc := s.store.ToDocument()
	s.mu.Unlock()

	cp, err := s.checkpoints.Save(r.Context(), doc, meta)
	if err != nil {
		s.respondDomainError(w, err)
		return
	}
	w.Header().Set("Location", "/checkpoints/"+cp.ID)
	respondJSON(w, http.StatusCreated, summarize(cp))
}

func (s *Server) getCheckpoint(w http.ResponseWriter, r *http.Request) {
	cp, err := s.checkpoints.Get(r.Context(), chi.URLParam(r, "checkpointID"))
	if err != nil {
		s.respondDomainError(w, err)
		return
	}
	respondJSON(w, http.StatusOK, cp)
}

func (s *Server) deleteCheckpoint(w http.ResponseWriter, r *http.Request) {
	if err := s.checkpoints.Delete(r.Context(), chi.URLParam(r, "checkpointID")); err != nil {
		s.respondDomainError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (s *Server) restoreCheckpoint(w http.ResponseWriter, r *http.Request) {
	s.mu.Lock()
	cp, err := s.checkpoints.Restore(r.Context(), s.store, chi.URLParam(r, "checkpointID"))
	s.mu.Unlock()
	if err != nil {
		s.respondDomainError(w, err)
		return
	}
	respondJSON(w, http.StatusOK, summarize(cp))
}

type checkpointSummary struct {
	ID        string              `json:"id"`
	FlowID    string              `json:"flow_id"`
	Metadata  checkpoint.Metadata `json:"metadata"`
	Timestamp time.Time           `json:"timestamp"`
}

func summarize(cp *checkpoint.Checkpoint) checkpointSummary {
	return checkpointSummary{ID: cp.ID, FlowID: cp.FlowID, Metadata: cp.Metadata, Timestamp: cp.Timestamp}
}

func parseFilter(r *http.Request) (checkpoint.Filter, error) {
	q := r.URL.Query()
	var f checkpoint.Filter
	var err error
	if v := q.Get("limit"); v != "" {
		if f.Limit, err = strconv.Atoi(v); err != nil {
			return f, errors.New("limit must be an integer")
		}
	}
	if v := q.Get("offset"); v != "" {
		if f.Offset, err = strconv.Atoi(v); err != nil {
			return f, errors.New("offset must be an integer")
		}
	}
	if v := q.Get("since"); v != "" {
		t, err := time.Parse(time.RFC3339, v)
		if err != nil {
			return f, errors.New("since must be an RFC 3339 time")
		}
		f.Since = &t
	}
	if v := q.Get("before"); v != "" {
		t, err := time.Parse(time.RFC3339, v)
		if err != nil {
			return f, errors.New("before must be an RFC 3339 time")
		}
		f.Before = &t
	}
	f.Source = q.Get("source")
	return f, nil
}
