package server

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/gorilla/websocket"
	"github.com/rs/zerolog/log"

	"github.com/becomeliminal/affect-memory/facts"
	"github.com/becomeliminal/affect-memory/memory"
)

// Request is one client message.
type Request struct {
	ID     string          `json:"id"`
	Op     string          `json:"op"`
	Params json.RawMessage `json:"params,omitempty"`
}

// Response answers one Request.
type Response struct {
	ID     string `json:"id"`
	OK     bool   `json:"ok"`
	Result any    `json:"result,omitempty"`
	Error  string `json:"error,omitempty"`
}

type opFunc func(ctx context.Context, params json.RawMessage) (any, error)

var (
	errNoDreamer = errors.New("dreaming is not configured")
	errNoFacts   = errors.New("fact ledger is not configured")
)

func (s *Server) handleWebSocket(w http.ResponseWriter, r *http.Request) {
	conn, err := s.upgrader.Upgrade(w, r, nil)
	if err != nil {
		log.Warn().Err(err).Msg("websocket upgrade failed")
		return
	}
	defer conn.Close()

	ctx, cancel := context.WithCancel(r.Context())
	defer cancel()
	go func() {
		<-ctx.Done()
		_ = conn.WriteControl(websocket.CloseMessage,
			websocket.FormatCloseMessage(websocket.CloseGoingAway, "server shutting down"),
			time.Now().Add(time.Second))
		conn.Close()
	}()

	log.Debug().Str("remote", r.RemoteAddr).Msg("websocket connected")
	for {
		_, data, err := conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway) {
				log.Debug().Err(err).Msg("websocket closed")
			}
			return
		}

		var resp Response
		var req Request
		if err := json.Unmarshal(data, &req); err != nil {
			resp = Response{Error: fmt.Sprintf("invalid request: %v", err)}
		} else {
			resp = s.Dispatch(ctx, req)
		}
		if err := conn.WriteJSON(resp); err != nil {
			log.Debug().Err(err).Msg("websocket write failed")
			return
		}
	}
}

// Dispatch runs one request. It never panics on bad input; every failure
// becomes an error response.
func (s *Server) Dispatch(ctx context.Context, req Request) Response {
	op, ok := s.ops[req.Op]
	if !ok {
		return Response{ID: req.ID, Error: fmt.Sprintf("unknown op %q", req.Op)}
	}
	result, err := op(ctx, req.Params)
	if err != nil {
		log.Debug().Err(err).Str("op", req.Op).Str("id", req.ID).Msg("request failed")
		return Response{ID: req.ID, Error: err.Error()}
	}
	return Response{ID: req.ID, OK: true, Result: result}
}

func (s *Server) routes() map[string]opFunc {
	return map[string]opFunc{
		"store":         s.opStore,
		"interaction":   s.opInteraction,
		"epiphany":      s.opEpiphany,
		"recall":        s.opRecall,
		"scan":          s.opScan,
		"delete":        s.opDelete,
		"count":         s.opCount,
		"dream":         s.opDream,
		"dream.sync":    s.opDreamSync,
		"fact.write":    s.opFactWrite,
		"fact.relevant": s.opFactRelevant,
		"fact.list":     s.opFactList,
	}
}

func decode(params json.RawMessage, v any) error {
	if len(params) == 0 {
		return nil
	}
	if err := json.Unmarshal(params, v); err != nil {
		return fmt.Errorf("invalid params: %w", err)
	}
	return nil
}

// withoutVectors drops embeddings from records sent to clients.
func withoutVectors[T any](items []T, rec func(*T) *memory.Record) []T {
	for i := range items {
		rec(&items[i]).Vector = nil
	}
	return items
}

type storeParams struct {
	Text          string             `json:"text"`
	EmotionVector []float64          `json:"emotion_vector"`
	Emotions      map[string]float64 `json:"emotions"`
	Importance    *float32           `json:"importance"`
	Kind          memory.Kind        `json:"kind"`
	Timestamp     *time.Time         `json:"timestamp"`
}

func (s *Server) opStore(ctx context.Context, params json.RawMessage) (any, error) {
	var p storeParams
	if err := decode(params, &p); err != nil {
		return nil, err
	}
	meta := memory.StoreMetadata{
		EmotionVector: p.EmotionVector,
		Importance:    p.Importance,
		Kind:          p.Kind,
		Emotions:      p.Emotions,
	}
	if p.Timestamp != nil {
		meta.Timestamp = *p.Timestamp
	}
	rec, err := s.config.Memory.Store(ctx, p.Text, meta)
	if err != nil {
		return nil, err
	}
	rec.Vector = nil
	return rec, nil
}

type affectParams struct {
	EmotionVector []float64          `json:"emotion_vector"`
	Emotions      map[string]float64 `json:"emotions"`
	Rapport       float64            `json:"rapport"`
}

func (p affectParams) affect() memory.Affect {
	return memory.Affect{Vector: p.EmotionVector, Emotions: p.Emotions, Rapport: p.Rapport}
}

func (s *Server) opInteraction(ctx context.Context, params json.RawMessage) (any, error) {
	var p struct {
		User  string `json:"user"`
		Reply string `json:"reply"`
		affectParams
	}
	if err := decode(params, &p); err != nil {
		return nil, err
	}
	rec, err := s.config.Memory.RecordInteraction(ctx, p.User, p.Reply, p.affect())
	if err != nil {
		return nil, err
	}
	rec.Vector = nil
	return rec, nil
}

func (s *Server) opEpiphany(ctx context.Context, params json.RawMessage) (any, error) {
	var p struct {
		Thought string `json:"thought"`
		affectParams
	}
	if err := decode(params, &p); err != nil {
		return nil, err
	}
	rec, err := s.config.Memory.RecordEpiphany(ctx, p.Thought, p.affect())
	if err != nil {
		return nil, err
	}
	rec.Vector = nil
	return rec, nil
}

// RecallResult is the result of the recall op.
type RecallResult struct {
	Memories []memory.ScoredRecord `json:"memories"`
	Prompt   string                `json:"prompt"`
}

func (s *Server) opRecall(ctx context.Context, params json.RawMessage) (any, error) {
	var p struct {
		Query         string    `json:"query"`
		TopK          int       `json:"top_k"`
		EmotionVector []float64 `json:"emotion_vector"`
		EmotionWeight *float64  `json:"emotion_weight"`
		MaxLen        int       `json:"max_len"`
	}
	if err := decode(params, &p); err != nil {
		return nil, err
	}
	hits, err := s.config.Memory.Recall(ctx, p.Query, memory.RecallOptions{
		EmotionVector: p.EmotionVector,
		TopK:          p.TopK,
		EmotionWeight: p.EmotionWeight,
	})
	if err != nil {
		return nil, err
	}
	if hits == nil {
		hits = []memory.ScoredRecord{}
	}
	hits = withoutVectors(hits, func(h *memory.ScoredRecord) *memory.Record { return &h.Record })
	return RecallResult{Memories: hits, Prompt: memory.FormatForPrompt(hits, p.MaxLen)}, nil
}

func (s *Server) opScan(ctx context.Context, params json.RawMessage) (any, error) {
	p := struct {
		Limit int         `json:"limit"`
		Kind  memory.Kind `json:"kind"`
	}{Limit: 100}
	if err := decode(params, &p); err != nil {
		return nil, err
	}
	if p.Kind != "" && !p.Kind.Valid() {
		return nil, fmt.Errorf("unknown kind %q", p.Kind)
	}
	recs, err := s.config.Memory.Scan(ctx, p.Limit, p.Kind)
	if err != nil {
		return nil, err
	}
	if recs == nil {
		recs = []memory.Record{}
	}
	return withoutVectors(recs, func(r *memory.Record) *memory.Record { return r }), nil
}

func (s *Server) opDelete(ctx context.Context, params json.RawMessage) (any, error) {
	var p struct {
		IDs []string `json:"ids"`
	}
	if err := decode(params, &p); err != nil {
		return nil, err
	}
	if err := s.config.Memory.Delete(ctx, p.IDs...); err != nil {
		return nil, err
	}
	return map[string]int{"requested": len(p.IDs)}, nil
}

func (s *Server) opCount(ctx context.Context, _ json.RawMessage) (any, error) {
	n, err := s.config.Memory.Count(ctx)
	if err != nil {
		return nil, err
	}
	return map[string]int{"count": n}, nil
}

func (s *Server) opDream(context.Context, json.RawMessage) (any, error) {
	if s.config.Scheduler == nil {
		return nil, errNoDreamer
	}
	// The dream outlives the request.
	started := s.config.Scheduler.Force(s.background)
	return map[string]bool{"started": started}, nil
}

func (s *Server) opDreamSync(ctx context.Context, params json.RawMessage) (any, error) {
	if s.config.Dreamer == nil {
		return nil, errNoDreamer
	}
	p := struct {
		Limit int `json:"limit"`
	}{Limit: s.config.DreamLimit}
	if err := decode(params, &p); err != nil {
		return nil, err
	}
	if s.config.Scheduler != nil {
		return s.config.Scheduler.RunNow(ctx, p.Limit)
	}
	return s.config.Dreamer.Run(ctx, p.Limit)
}

func (s *Server) opFactWrite(ctx context.Context, params json.RawMessage) (any, error) {
	if s.config.Facts == nil {
		return nil, errNoFacts
	}
	var p struct {
		Key        string `json:"key"`
		Value      string `json:"value"`
		Provenance string `json:"provenance"`
	}
	if err := decode(params, &p); err != nil {
		return nil, err
	}
	written := s.config.Facts.Write(ctx, p.Key, p.Value, facts.ParseProvenance(p.Provenance))
	return map[string]bool{"written": written}, nil
}

func (s *Server) opFactRelevant(_ context.Context, params json.RawMessage) (any, error) {
	if s.config.Facts == nil {
		return nil, errNoFacts
	}
	var p struct {
		Query string `json:"query"`
	}
	if err := decode(params, &p); err != nil {
		return nil, err
	}
	return s.config.Facts.Relevant(p.Query), nil
}

func (s *Server) opFactList(context.Context, json.RawMessage) (any, error) {
	if s.config.Facts == nil {
		return nil, errNoFacts
	}
	return s.config.Facts.All(), nil
}
