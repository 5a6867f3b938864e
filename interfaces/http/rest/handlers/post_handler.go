package handlers

import (
	"net/http"

	"branchpost/application/queries"
	querybus "branchpost/application/queries/bus"
	"branchpost/pkg/common"
	pkgerrors "branchpost/pkg/errors"

	"github.com/go-chi/chi/v5"
	chimiddleware "github.com/go-chi/chi/v5/middleware"
)

// PostHandler serves materialized trees and their nodes
type PostHandler struct {
	queryBus *querybus.QueryBus
	errors   *pkgerrors.ErrorHandler
}

// NewPostHandler creates a new post handler
func NewPostHandler(queryBus *querybus.QueryBus, errorHandler *pkgerrors.ErrorHandler) *PostHandler {
	return &PostHandler{queryBus: queryBus, errors: errorHandler}
}

// GetCompletePost handles GET /api/posts/{treeID}/complete
func (h *PostHandler) GetCompletePost(w http.ResponseWriter, r *http.Request) {
	h.ask(w, r, queries.GetTreeQuery{TreeID: chi.URLParam(r, "treeID")})
}

// GetNode handles GET /api/nodes/{nodeID}
func (h *PostHandler) GetNode(w http.ResponseWriter, r *http.Request) {
	h.ask(w, r, queries.GetNodeQuery{NodeID: chi.URLParam(r, "nodeID")})
}

// ListPosts handles GET /api/posts
func (h *PostHandler) ListPosts(w http.ResponseWriter, r *http.Request) {
	params := common.ExtractPageParams(r)
	result, err := h.queryBus.Ask(r.Context(), queries.ListTreesQuery{Offset: params.Offset, Limit: params.Limit})
	if err != nil {
		h.errors.Handle(w, r, err)
		return
	}

	page := result.(*common.PaginatedResult)
	common.RespondWithMeta(w, http.StatusOK, page.Items, &common.MetaInfo{
		RequestID:  chimiddleware.GetReqID(r.Context()),
		Pagination: page.Pagination,
	})
}

func (h *PostHandler) ask(w http.ResponseWriter, r *http.Request, q querybus.Query) {
	result, err := h.queryBus.Ask(r.Context(), q)
	if err != nil {
		h.errors.Handle(w, r, err)
		return
	}
	common.RespondJSON(w, http.StatusOK, result)
}
