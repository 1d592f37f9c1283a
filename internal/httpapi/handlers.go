package httpapi

import (
	"encoding/json"
	"errors"
	"net/http"
	"strconv"

	"github.com/unkn0wn-root/transcache"
)

const maxBody = 1 << 20

const msgNotFound = "Translation not found"

type message struct {
	Message string `json:"message"`
}

type envelope struct {
	Message string                  `json:"message"`
	Data    *transcache.Translation `json:"data"`
}

func (s *server) list(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	res, err := s.svc.List(r.Context(), transcache.Filters{
		Locale: q.Get("locale"),
		Tag:    q.Get("tag"),
		Key:    q.Get("key"),
		Value:  q.Get("value"),
	})
	if err != nil {
		s.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, res)
}

func (s *server) get(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(r)
	if !ok {
		writeJSON(w, http.StatusNotFound, message{Message: msgNotFound})
		return
	}
	t, err := s.svc.Get(r.Context(), id)
	if err != nil {
		s.fail(w, r, err)
		return
	}
	if t == nil {
		writeJSON(w, http.StatusNotFound, message{Message: msgNotFound})
		return
	}
	writeJSON(w, http.StatusOK, t)
}

func (s *server) create(w http.ResponseWriter, r *http.Request) {
	body, ok := s.readBody(w, r)
	if !ok {
		return
	}
	in, verr := parseCreate(body)
	if verr != nil {
		writeJSON(w, http.StatusUnprocessableEntity, verr)
		return
	}
	t, err := s.svc.Create(r.Context(), in)
	if err != nil {
		s.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, envelope{Message: "Translation created successfully", Data: t})
}

func (s *server) update(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(r)
	if !ok {
		writeJSON(w, http.StatusNotFound, message{Message: msgNotFound})
		return
	}
	body, ok := s.readBody(w, r)
	if !ok {
		return
	}
	p, verr := parseUpdate(body)
	if verr != nil {
		writeJSON(w, http.StatusUnprocessableEntity, verr)
		return
	}
	t, err := s.svc.Update(r.Context(), id, p)
	if err != nil {
		s.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, envelope{Message: "Translation updated successfully", Data: t})
}

func (s *server) export(w http.ResponseWriter, r *http.Request) {
	exp, err := s.svc.Export(r.Context())
	if err != nil {
		s.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, exp)
}

// readBody decodes a JSON object into raw fields. It writes the error
// response itself and reports false when the body is unusable.
func (s *server) readBody(w http.ResponseWriter, r *http.Request) (map[string]json.RawMessage, bool) {
	r.Body = http.MaxBytesReader(w, r.Body, maxBody)
	var body map[string]json.RawMessage
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
		var tooBig *http.MaxBytesError
		if errors.As(err, &tooBig) {
			writeJSON(w, http.StatusRequestEntityTooLarge, message{Message: "Request body too large"})
			return nil, false
		}
		writeJSON(w, http.StatusBadRequest, message{Message: "Malformed JSON body"})
		return nil, false
	}
	if body == nil {
		body = map[string]json.RawMessage{}
	}
	return body, true
}

func (s *server) fail(w http.ResponseWriter, r *http.Request, err error) {
	switch {
	case errors.Is(err, transcache.ErrNotFound):
		writeJSON(w, http.StatusNotFound, message{Message: msgNotFound})
	case errors.Is(err, transcache.ErrDuplicateKey):
		writeJSON(w, http.StatusConflict, message{Message: "Translation with this key and locale already exists."})
	default:
		s.log.Error("request failed", transcache.Fields{"method": r.Method, "path": r.URL.Path, "err": err})
		writeJSON(w, http.StatusInternalServerError, message{Message: "Server Error"})
	}
}

func pathID(r *http.Request) (int64, bool) {
	id, err := strconv.ParseInt(r.PathValue("id"), 10, 64)
	if err != nil || id <= 0 {
		return 0, false
	}
	return id, true
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}
