package handlers

import (
	_ "embed"
	"net/http"

	"github.com/tink3rlabs/targeting/types"
)

//go:embed openapi.json
var openAPIPaths []byte

func (h *handler) openAPI(w http.ResponseWriter, r *http.Request) error {
	doc, err := types.MergeOpenAPIDefinitions(openAPIPaths)
	if err != nil {
		return err
	}
	w.Header().Set("Content-Type", "application/json")
	_, err = w.Write(doc)
	return err
}
