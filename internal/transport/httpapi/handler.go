package httpapi

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	log "github.com/sirupsen/logrus"

	"github.com/vladislavdragonenkov/order-lifecycle/internal/domain"
)

const maxBodyBytes = 1 << 20

// OrderService: операции жизненного цикла, которые обслуживает HTTP-слой.
type OrderService interface {
	Create(ctx context.Context, in domain.CreateOrderInput) (domain.Order, error)
	List(ctx context.Context, sellerID string) ([]domain.Order, error)
	Get(ctx context.Context, orderID string) (domain.Order, error)
	Update(ctx context.Context, orderID string, patch domain.OrderPatch) (domain.Order, error)
	Delete(ctx context.Context, orderID string) error
}

// Handler: REST-адаптер над OrderService.
type Handler struct {
	service OrderService
	logger  *log.Entry
}

// NewHandler создаёт handler.
func NewHandler(service OrderService, logger *log.Entry) *Handler {
	if logger == nil {
		logger = log.NewEntry(log.StandardLogger())
	}
	return &Handler{
		service: service,
		logger:  logger.WithField("component", "http-api"),
	}
}

// Router собирает chi-роутер с middleware.
func (h *Handler) Router() http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(accessLog(h.logger))
	r.Use(middleware.Recoverer)

	h.RegisterRoutes(r)
	return r
}

// RegisterRoutes регистрирует маршруты /orders.
func (h *Handler) RegisterRoutes(r chi.Router) {
	r.Route("/orders", func(r chi.Router) {
		r.Post("/", h.createOrder)
		r.Get("/", h.listOrders)
		r.Get("/{orderId}", h.getOrder)
		r.Patch("/{orderId}", h.updateOrder)
		r.Delete("/{orderId}", h.deleteOrder)
	})
}

func (h *Handler) createOrder(w http.ResponseWriter, r *http.Request) {
	var req createOrderRequest
	if err := decodeJSON(w, r, &req); err != nil {
		respond(w, http.StatusBadRequest, errorResponse{Error: err.Error()})
		return
	}

	order, err := h.service.Create(r.Context(), req.toInput())
	if err != nil {
		h.respondError(w, r, err)
		return
	}
	respond(w, http.StatusCreated, toResponse(order))
}

func (h *Handler) listOrders(w http.ResponseWriter, r *http.Request) {
	orders, err := h.service.List(r.Context(), r.URL.Query().Get("sellerId"))
	if err != nil {
		h.respondError(w, r, err)
		return
	}
	respond(w, http.StatusOK, toResponses(orders))
}

func (h *Handler) getOrder(w http.ResponseWriter, r *http.Request) {
	order, err := h.service.Get(r.Context(), chi.URLParam(r, "orderId"))
	if err != nil {
		h.respondError(w, r, err)
		return
	}
	respond(w, http.StatusOK, toResponse(order))
}

func (h *Handler) updateOrder(w http.ResponseWriter, r *http.Request) {
	var req updateOrderRequest
	if err := decodeJSON(w, r, &req); err != nil {
		respond(w, http.StatusBadRequest, errorResponse{Error: err.Error()})
		return
	}
	patch, err := req.toPatch()
	if err != nil {
		h.respondError(w, r, err)
		return
	}

	order, err := h.service.Update(r.Context(), chi.URLParam(r, "orderId"), patch)
	if err != nil {
		h.respondError(w, r, err)
		return
	}
	respond(w, http.StatusOK, toResponse(order))
}

func (h *Handler) deleteOrder(w http.ResponseWriter, r *http.Request) {
	if err := h.service.Delete(r.Context(), chi.URLParam(r, "orderId")); err != nil {
		h.respondError(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// respondError переводит доменные ошибки в HTTP-коды. Детали сбоев
// хранилища уходят только в лог.
func (h *Handler) respondError(w http.ResponseWriter, r *http.Request, err error) {
	switch {
	case domain.IsValidation(err):
		respond(w, http.StatusBadRequest, errorResponse{Error: err.Error()})
	case domain.IsDuplicateKey(err):
		respond(w, http.StatusConflict, errorResponse{Error: err.Error()})
	case domain.IsNotFound(err):
		respond(w, http.StatusNotFound, errorResponse{Error: err.Error()})
	default:
		h.logger.WithError(err).WithFields(log.Fields{
			"method":     r.Method,
			"path":       r.URL.Path,
			"request_id": middleware.GetReqID(r.Context()),
		}).Error("request failed")
		respond(w, http.StatusInternalServerError, errorResponse{Error: "internal server error"})
	}
}

func decodeJSON(w http.ResponseWriter, r *http.Request, dst any) error {
	dec := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxBodyBytes))
	if err := dec.Decode(dst); err != nil {
		if errors.Is(err, io.EOF) {
			return errors.New("request body is empty")
		}
		return fmt.Errorf("invalid request body: %w", err)
	}
	return nil
}

func respond(w http.ResponseWriter, code int, body any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	_ = json.NewEncoder(w).Encode(body)
}

// accessLog пишет access-лог через logrus.
func accessLog(logger *log.Entry) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
			started := time.Now()
			defer func() {
				logger.WithFields(log.Fields{
					"method":      r.Method,
					"path":        r.URL.Path,
					"status":      ww.Status(),
					"bytes":       ww.BytesWritten(),
					"duration_ms": time.Since(started).Milliseconds(),
					"request_id":  middleware.GetReqID(r.Context()),
				}).Info("http request")
			}()
			next.ServeHTTP(ww, r)
		})
	}
}
