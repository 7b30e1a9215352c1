// Package http serves the access layer over a JSON API on fiber.
package http

import (
	"context"
	stderrors "errors"
	"fmt"

	"firestore-access/internal/access/adapter/persistence/redis"
	"firestore-access/internal/access/domain/model"
	"firestore-access/internal/access/usecase"
	"firestore-access/internal/shared/errors"
	"firestore-access/internal/shared/logger"

	"github.com/gofiber/fiber/v2"
)

// DefaultAuditPageSize bounds audit reads that name no count.
const DefaultAuditPageSize = 100

// AuditReader reads back the mutation log of one collection.
type AuditReader interface {
	Events(ctx context.Context, collectionPath, after string, count int64) ([]redis.Entry, error)
}

// Handler exposes a usecase.DB.
type Handler struct {
	db    *usecase.DB
	audit AuditReader
	log   logger.Logger
}

// HandlerOption configures a Handler.
type HandlerOption func(*Handler)

// WithAuditReader enables the audit route.
func WithAuditReader(r AuditReader) HandlerOption {
	return func(h *Handler) { h.audit = r }
}

// WithHandlerLogger sets the logger.
func WithHandlerLogger(l logger.Logger) HandlerOption {
	return func(h *Handler) { h.log = l }
}

// NewHandler creates a Handler over db.
func NewHandler(db *usecase.DB, opts ...HandlerOption) *Handler {
	h := &Handler{db: db, log: logger.NoopLogger{}}
	for _, opt := range opts {
		opt(h)
	}
	h.log = h.log.WithComponent("access-http")
	return h
}

// RegisterRoutes mounts the document, query and audit routes on router.
func (h *Handler) RegisterRoutes(router fiber.Router) {
	docs := router.Group("/docs")
	docs.Post("/get", h.GetDoc)
	docs.Post("/", h.Create)
	docs.Patch("/", h.Update)
	docs.Delete("/", h.Delete)
	docs.Delete("/hard", h.HardDelete)

	router.Post("/batch", h.Batch)
	router.Post("/query", h.Query)
	router.Post("/paginate", h.Paginate)

	if h.audit != nil {
		router.Get("/audit", h.Audit)
	}
}

func parseBody(c *fiber.Ctx, out interface{}) error {
	if err := c.BodyParser(out); err != nil {
		return errors.NewValidationError("invalid request body").WithCause(errors.ErrInvalidInput).WithDetail("reason", err.Error())
	}
	return nil
}

func (r WriteRequest) decode() (usecase.PathArgs, map[string]model.Value, error) {
	args, err := r.args()
	if err != nil {
		return args, nil, err
	}
	data, err := decodeFields(r.Data)
	if err != nil {
		return args, nil, errors.NewValidationError("invalid document data").WithCause(err)
	}
	return args, data, nil
}

// GetDoc reads one document. A missing document answers 404.
func (h *Handler) GetDoc(c *fiber.Ctx) error {
	var req PathRequest
	if err := parseBody(c, &req); err != nil {
		return err
	}
	args, err := req.args()
	if err != nil {
		return err
	}
	doc, err := h.db.GetDoc(c.UserContext(), args)
	if err != nil {
		return err
	}
	if !doc.Exists() {
		return errors.NewNotFoundError("document").WithCause(errors.ErrDocumentNotFound).WithDetail("path", doc.Ref().Path())
	}
	return c.JSON(newDocumentResponse(doc))
}

// Create writes a new document and answers its reference.
func (h *Handler) Create(c *fiber.Ctx) error {
	var req WriteRequest
	if err := parseBody(c, &req); err != nil {
		return err
	}
	args, data, err := req.decode()
	if err != nil {
		return err
	}
	ref, err := h.db.Create(c.UserContext(), args, eventBy(c), data)
	if err != nil {
		return err
	}
	return c.Status(fiber.StatusCreated).JSON(newRefResponse(ref))
}

// Update merges data into an existing document.
func (h *Handler) Update(c *fiber.Ctx) error {
	var req WriteRequest
	if err := parseBody(c, &req); err != nil {
		return err
	}
	args, data, err := req.decode()
	if err != nil {
		return err
	}
	ref, err := h.db.Update(c.UserContext(), args, eventBy(c), data)
	if err != nil {
		return err
	}
	return c.JSON(newRefResponse(ref))
}

// Delete soft deletes a document, optionally merging data.
func (h *Handler) Delete(c *fiber.Ctx) error {
	var req WriteRequest
	if err := parseBody(c, &req); err != nil {
		return err
	}
	args, data, err := req.decode()
	if err != nil {
		return err
	}
	ref, err := h.db.Delete(c.UserContext(), args, eventBy(c), data)
	if err != nil {
		return err
	}
	return c.JSON(newRefResponse(ref))
}

// HardDelete removes a document from the store.
func (h *Handler) HardDelete(c *fiber.Ctx) error {
	var req PathRequest
	if err := parseBody(c, &req); err != nil {
		return err
	}
	args, err := req.args()
	if err != nil {
		return err
	}
	ref, err := h.db.HardDelete(c.UserContext(), args)
	if err != nil {
		return err
	}
	return c.JSON(newRefResponse(ref))
}

// Batch applies every write of the request atomically.
func (h *Handler) Batch(c *fiber.Ctx) error {
	var req BatchRequest
	if err := parseBody(c, &req); err != nil {
		return err
	}
	if len(req.Writes) == 0 {
		return errors.NewValidationError("batch has no writes").WithCause(errors.ErrInvalidInput)
	}

	ctx := c.UserContext()
	by := eventBy(c)
	batch := h.db.Batch()
	refs := make([]RefResponse, 0, len(req.Writes))
	for i, w := range req.Writes {
		ref, err := h.applyBatchWrite(ctx, batch, by, w)
		if err != nil {
			var appErr *errors.AppError
			if stderrors.As(err, &appErr) {
				appErr.WithDetail("write", i)
			}
			return fmt.Errorf("write %d: %w", i, err)
		}
		refs = append(refs, newRefResponse(ref))
	}
	if err := batch.End(ctx); err != nil {
		return err
	}
	h.log.WithContext(ctx).Debugf("applied batch of %d writes", len(refs))
	return c.JSON(fiber.Map{"refs": refs})
}

func (h *Handler) applyBatchWrite(ctx context.Context, batch *usecase.DB, by *model.EventBy, w BatchWrite) (*usecase.DocumentRef, error) {
	args, data, err := w.decode()
	if err != nil {
		return nil, err
	}
	switch w.Op {
	case model.OpCreate:
		return batch.Create(ctx, args, by, data)
	case model.OpUpdate:
		return batch.Update(ctx, args, by, data)
	case model.OpDelete:
		return batch.Delete(ctx, args, by, data)
	case model.OpHardDelete:
		return batch.HardDelete(ctx, args)
	}
	return nil, errors.NewValidationError("unknown batch operation").WithCause(errors.ErrInvalidInput).WithDetail("op", string(w.Op))
}

// Query reads one ordered page of a collection or collection group.
func (h *Handler) Query(c *fiber.Ctx) error {
	var req QueryRequest
	if err := parseBody(c, &req); err != nil {
		return err
	}
	args, err := req.args()
	if err != nil {
		return err
	}
	opts, err := req.options()
	if err != nil {
		return err
	}
	res, err := h.db.GetQuery(c.UserContext(), args, opts)
	if err != nil {
		return err
	}
	return c.JSON(QueryResponse{Docs: newDocumentResponses(res.Docs), Cursor: res.Cursor})
}

// Paginate reads the next page after the state in the request.
func (h *Handler) Paginate(c *fiber.Ctx) error {
	var req QueryRequest
	if err := parseBody(c, &req); err != nil {
		return err
	}
	args, err := req.args()
	if err != nil {
		return err
	}
	opts, err := req.options()
	if err != nil {
		return err
	}
	page, err := h.db.GetPaginatedDocs(c.UserContext(), args, opts, req.Page)
	if err != nil {
		return err
	}
	return c.JSON(PageResponse{Docs: newDocumentResponses(page.Docs), Page: page.PageCursor})
}

// Audit lists the mutation log of ?collection= after the entry ?after=.
func (h *Handler) Audit(c *fiber.Ctx) error {
	collection := c.Query("collection")
	if collection == "" {
		return errors.NewValidationError("collection is required").WithCause(errors.ErrInvalidInput)
	}
	count := c.QueryInt("count", DefaultAuditPageSize)
	if count <= 0 {
		return errors.NewValidationError("count must be positive").WithCause(errors.ErrInvalidInput)
	}
	entries, err := h.audit.Events(c.UserContext(), collection, c.Query("after"), int64(count))
	if err != nil {
		return errors.NewInfrastructureError("failed to read audit log").WithCause(err)
	}
	out := make([]AuditRecordResponse, len(entries))
	for i, e := range entries {
		out[i] = newAuditRecordResponse(e.ID, e.Record)
	}
	return c.JSON(fiber.Map{"entries": out})
}
