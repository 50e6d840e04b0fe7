package handlers

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/render"

	serviceErrors "github.com/tink3rlabs/targeting/errors"
	"github.com/tink3rlabs/targeting/storage"
	"github.com/tink3rlabs/targeting/types"
)

// listProfiles lists the profiles targeted by q, or those found by the Lucene query in
// search. With neither every profile is listed.
func (h *handler) listProfiles(w http.ResponseWriter, r *http.Request) error {
	p, err := page(r)
	if err != nil {
		return err
	}
	q := r.URL.Query().Get("q")
	search := r.URL.Query().Get("search")

	var profiles []storage.Profile
	var next string
	switch {
	case q != "" && search != "":
		return &serviceErrors.BadRequest{Message: "q and search can't be used together"}
	case q != "":
		profiles, next, err = h.service.Find(r.Context(), q, p)
	default:
		profiles, next, err = h.service.Search(r.Context(), search, p)
	}
	if err != nil {
		return err
	}
	if profiles == nil {
		profiles = []storage.Profile{}
	}
	render.JSON(w, r, types.ListResponse[storage.Profile]{Data: profiles, Meta: types.Meta{Next: next}})
	return nil
}

func (h *handler) countProfiles(w http.ResponseWriter, r *http.Request) error {
	count, err := h.service.Count(r.Context(), r.URL.Query().Get("q"))
	if err != nil {
		return err
	}
	render.JSON(w, r, types.MetaResponse{Meta: types.Meta{Count: &count}})
	return nil
}

func (h *handler) getProfile(w http.ResponseWriter, r *http.Request) error {
	profile, err := h.service.GetProfile(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		return err
	}
	render.JSON(w, r, profile)
	return nil
}

func (h *handler) matchProfile(w http.ResponseWriter, r *http.Request) error {
	match, err := h.service.Match(r.Context(), chi.URLParam(r, "id"), r.URL.Query().Get("q"))
	if err != nil {
		return err
	}
	render.JSON(w, r, types.MetaResponse{Meta: types.Meta{Match: &match}})
	return nil
}

func (h *handler) createProfile(w http.ResponseWriter, r *http.Request) error {
	var profile storage.Profile
	if err := decode(r, &profile); err != nil {
		return err
	}
	if err := h.service.CreateProfile(r.Context(), &profile); err != nil {
		return err
	}
	render.Status(r, http.StatusCreated)
	render.JSON(w, r, profile)
	return nil
}
