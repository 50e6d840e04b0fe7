package handlers

import (
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/render"

	"github.com/tink3rlabs/targeting/middlewares"
	"github.com/tink3rlabs/targeting/storage"
	"github.com/tink3rlabs/targeting/types"
)

type segmentRequest struct {
	Name  string `json:"name"`
	Query string `json:"query"`
}

func (h *handler) createSegment(w http.ResponseWriter, r *http.Request) error {
	var req segmentRequest
	if err := decode(r, &req); err != nil {
		return err
	}
	segment, err := h.service.CreateSegment(r.Context(), req.Name, req.Query)
	if err != nil {
		return err
	}
	slog.Info("segment created",
		slog.String("id", segment.ID),
		slog.String("user", middlewares.GetUserIDFromContext(r.Context())),
		slog.String("email", middlewares.GetEmailFromContext(r.Context())),
	)
	render.Status(r, http.StatusCreated)
	render.JSON(w, r, segment)
	return nil
}

func (h *handler) listSegments(w http.ResponseWriter, r *http.Request) error {
	p, err := page(r)
	if err != nil {
		return err
	}
	segments, next, err := h.service.ListSegments(r.Context(), p)
	if err != nil {
		return err
	}
	if segments == nil {
		segments = []storage.Segment{}
	}
	render.JSON(w, r, types.ListResponse[storage.Segment]{Data: segments, Meta: types.Meta{Next: next}})
	return nil
}

func (h *handler) getSegment(w http.ResponseWriter, r *http.Request) error {
	segment, err := h.service.GetSegment(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		return err
	}
	render.JSON(w, r, segment)
	return nil
}

func (h *handler) countSegment(w http.ResponseWriter, r *http.Request) error {
	count, err := h.service.SegmentCount(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		return err
	}
	render.JSON(w, r, types.MetaResponse{Meta: types.Meta{Count: &count}})
	return nil
}
