package handlers

import (
	"io"
	"net/http"

	"github.com/go-chi/render"

	serviceErrors "github.com/tink3rlabs/targeting/errors"
)

type parseRequest struct {
	Query     string `json:"query"`
	StartRule string `json:"startRule"`
}

type generateResponse struct {
	Query string `json:"query"`
}

func (h *handler) parse(w http.ResponseWriter, r *http.Request) error {
	var req parseRequest
	if err := decode(r, &req); err != nil {
		return err
	}
	tree, err := h.service.ParseTree(r.Context(), req.Query, req.StartRule)
	if err != nil {
		return err
	}
	render.JSON(w, r, tree)
	return nil
}

// generate renders the tree in the request body as canonical query text.
func (h *handler) generate(w http.ResponseWriter, r *http.Request) error {
	body, err := io.ReadAll(r.Body)
	if err != nil {
		return &serviceErrors.BadRequest{Message: "failed to read request body: " + err.Error()}
	}
	query, err := h.service.GenerateText(r.Context(), body)
	if err != nil {
		return err
	}
	render.JSON(w, r, generateResponse{Query: query})
	return nil
}
