package http

import (
	"encoding/json"
	"io"
	"net/http"

	"quizapp-service/internal/app"
)

type credentials struct {
	Email    string `json:"email"`
	Password string `json:"password"`
}

type profileResponse struct {
	app.Profile
	Message string `json:"message,omitempty"`
}

func decodeJSON(r *http.Request, v any) error {
	return json.NewDecoder(io.LimitReader(r.Body, maxFormBytes)).Decode(v)
}

func (h *handler) signUp(w http.ResponseWriter, r *http.Request) {
	var in app.SignUp
	if err := decodeJSON(r, &in); err != nil {
		writeJSON(w, http.StatusBadRequest, errorBody{Error: "invalid sign up payload"})
		return
	}
	user, err := h.auth.Register(r.Context(), sessionID(r), in)
	if err != nil {
		writeError(w, h.log, err)
		return
	}
	writeJSON(w, http.StatusCreated, user)
}

func (h *handler) login(w http.ResponseWriter, r *http.Request) {
	var in credentials
	if err := decodeJSON(r, &in); err != nil {
		writeJSON(w, http.StatusBadRequest, errorBody{Error: "invalid login payload"})
		return
	}
	user, err := h.auth.Login(r.Context(), sessionID(r), in.Email, in.Password)
	if err != nil {
		writeError(w, h.log, err)
		return
	}
	writeJSON(w, http.StatusOK, user)
}

func (h *handler) logout(w http.ResponseWriter, r *http.Request) {
	if err := h.auth.Logout(r.Context(), sessionID(r)); err != nil {
		writeError(w, h.log, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (h *handler) showProfile(w http.ResponseWriter, r *http.Request) {
	profile, err := h.auth.Profile(r.Context(), currentUser(r))
	if err != nil {
		writeError(w, h.log, err)
		return
	}
	resp := profileResponse{Profile: profile}
	if profile.BestScore == nil {
		resp.Message = "no score available"
	}
	writeJSON(w, http.StatusOK, resp)
}

func (h *handler) updateProfile(w http.ResponseWriter, r *http.Request) {
	var in app.ProfileUpdate
	if err := decodeJSON(r, &in); err != nil {
		writeJSON(w, http.StatusBadRequest, errorBody{Error: "invalid profile payload"})
		return
	}
	user, err := h.auth.UpdateProfile(r.Context(), currentUser(r), in)
	if err != nil {
		writeError(w, h.log, err)
		return
	}
	writeJSON(w, http.StatusOK, user)
}
