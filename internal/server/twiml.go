package server

import (
	"encoding/xml"
	"net/http"
)

type twimlResponse struct {
	XMLName xml.Name `xml:"Response"`
	Message string   `xml:"Message,omitempty"`
}

// writeTwiML answers a messaging webhook. The upstream provider expects a 200
// with a Response document for every inbound event, including failures.
func writeTwiML(w http.ResponseWriter, message string) {
	w.Header().Set("Content-Type", "text/xml")
	w.WriteHeader(http.StatusOK)
	out, err := xml.Marshal(twimlResponse{Message: message})
	if err != nil {
		// Marshal of a flat struct cannot realistically fail; keep the
		// provider happy regardless.
		out = []byte("<Response></Response>")
	}
	_, _ = w.Write(out)
}
