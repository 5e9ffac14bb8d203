// Package server wires the webhook endpoints of the two inbound channels to
// the engine.
package server

import (
	"encoding/json"
	"errors"
	"log"
	"net/http"

	"concierge/internal/store"
)

type Server struct {
	engine *Engine
	mux    *http.ServeMux
}

func New(engine *Engine) *Server {
	s := &Server{engine: engine, mux: http.NewServeMux()}
	s.mux.HandleFunc("GET /health", s.handleHealth)
	s.mux.HandleFunc("POST /twilio/sms", s.handleSMS)
	s.mux.HandleFunc("POST /elevenlabs/twilio-personalize", s.handlePersonalize)
	s.mux.HandleFunc("POST /elevenlabs/post-call", s.handlePostCall)
	return s
}

func (s *Server) Handler() http.Handler { return s.mux }

func (s *Server) ListenAndServe(addr string) error {
	log.Printf("server live on %s", addr)
	return http.ListenAndServe(addr, s.mux)
}

func (s *Server) handleHealth(w http.ResponseWriter, _ *http.Request) {
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write([]byte("ok"))
}

func (s *Server) handleSMS(w http.ResponseWriter, r *http.Request) {
	if err := r.ParseForm(); err != nil {
		writeTwiML(w, "ok")
		return
	}
	rawFrom := r.PostFormValue("From")
	body := r.PostFormValue("Body")
	eventID := r.PostFormValue("MessageSid")

	if rawFrom == "" || body == "" {
		// Malformed event: acknowledge so the provider stops retrying.
		writeTwiML(w, "ok")
		return
	}

	reply, err := s.engine.HandleSMS(r.Context(), rawFrom, body, eventID)
	switch {
	case errors.Is(err, store.ErrAlreadyProcessed):
		// Duplicate delivery: acknowledge without a second reply.
		writeTwiML(w, "")
	case err != nil:
		writeTwiML(w, FallbackReply)
	default:
		writeTwiML(w, reply)
	}
}

func (s *Server) handlePersonalize(w http.ResponseWriter, r *http.Request) {
	var env callEnvelope
	if err := json.NewDecoder(r.Body).Decode(&env); err != nil {
		log.Printf("personalize: undecodable payload: %v", err)
	}

	vars := s.engine.PersonalizeVars(r.Context(), env.callerAddress())
	writeJSON(w, map[string]any{"dynamic_variables": vars})
}

func (s *Server) handlePostCall(w http.ResponseWriter, r *http.Request) {
	var env callEnvelope
	if err := json.NewDecoder(r.Body).Decode(&env); err != nil {
		log.Printf("post-call: undecodable payload: %v", err)
		writeJSON(w, map[string]any{"ok": true})
		return
	}

	err := s.engine.HandlePostCall(r.Context(), &env)
	switch {
	case errors.Is(err, errMalformedPayload):
		// Acknowledge to stop retries; nothing usable to process.
		writeJSON(w, map[string]any{"ok": true})
	case err != nil:
		writeJSON(w, map[string]any{"ok": false})
	default:
		writeJSON(w, map[string]any{"ok": true})
	}
}

func writeJSON(w http.ResponseWriter, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusOK)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		log.Printf("failed to encode response: %v", err)
	}
}
