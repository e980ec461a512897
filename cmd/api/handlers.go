package main

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/google/uuid"
	"github.com/safar/go-storefront/internal/cart"
	"github.com/safar/go-storefront/internal/checkout"
	"github.com/safar/go-storefront/internal/database"
	"github.com/safar/go-storefront/internal/models"
	"github.com/safar/go-storefront/internal/money"
	"github.com/safar/go-storefront/internal/session"
	"github.com/safar/go-storefront/internal/store"
)

const sessionCookie = "storefront_session"

type contextKey string

const sessionIDKey contextKey = "session_id"

type application struct {
	db       *sql.DB
	sessions session.Store
	catalog  *store.Catalog
	orders   *store.Orders
	checkout *checkout.Orchestrator
	logger   *slog.Logger
}

func (app *application) routes(metricsHandler http.Handler) http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(middleware.Logger)
	r.Use(middleware.Recoverer)
	r.Use(app.withSession)

	r.Get("/cart", app.handleGetCart)
	r.Post("/cart/add/{productID}", app.handleCartAdd)
	r.Patch("/cart/update/{productID}", app.handleCartUpdate)
	r.Post("/cart/delete/{productID}", app.handleCartDelete)
	r.Post("/cart/clear", app.handleCartClear)
	r.Post("/cart/restore/{orderID}", app.handleCartRestore)

	r.Post("/order/confirm", app.handleOrderConfirm)
	r.Get("/orders", app.handleListOrders)
	r.Get("/orders/{orderID}", app.handleGetOrder)

	r.Post("/payment/process", app.handlePaymentProcess)
	r.Get("/payment/completed", app.handlePaymentCompleted)
	r.Get("/payment/canceled", app.handlePaymentCanceled)

	r.Post("/products", app.handleCreateProduct)
	r.Get("/products", app.handleListProducts)
	r.Get("/products/{productID}", app.handleGetProduct)
	r.Post("/users", app.handleCreateUser)

	r.Method(http.MethodGet, "/metrics", metricsHandler)

	return r
}

// withSession guarantees every request carries a session id, issuing a new
// cookie on first contact.
func (app *application) withSession(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		var sessionID string
		if cookie, err := r.Cookie(sessionCookie); err == nil && cookie.Value != "" {
			sessionID = cookie.Value
		} else {
			sessionID = uuid.NewString()
			http.SetCookie(w, &http.Cookie{
				Name:     sessionCookie,
				Value:    sessionID,
				Path:     "/",
				HttpOnly: true,
				SameSite: http.SameSiteLaxMode,
			})
		}

		ctx := context.WithValue(r.Context(), sessionIDKey, sessionID)
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

func sessionID(r *http.Request) string {
	id, _ := r.Context().Value(sessionIDKey).(string)
	return id
}

// currentUserID reads the authenticated user from the X-User-ID header.
// Authentication itself lives in front of this service.
func currentUserID(r *http.Request) (int64, bool) {
	id, err := strconv.ParseInt(r.Header.Get("X-User-ID"), 10, 64)
	if err != nil || id < 1 {
		return 0, false
	}
	return id, true
}

func (app *application) loadCart(r *http.Request) (*cart.SessionCart, error) {
	return cart.Load(r.Context(), app.sessions, app.catalog, sessionID(r))
}

type cartResponse struct {
	Lines      []cart.Line    `json:"lines"`
	TotalPrice string         `json:"total_price"`
	Pending    []models.Order `json:"pending_orders,omitempty"`
}

func (app *application) cartResponse(ctx context.Context, r *http.Request, c *cart.SessionCart) cartResponse {
	resp := cartResponse{
		Lines:      c.Lines(),
		TotalPrice: c.Total().StringFixed(2),
	}

	// The cart page also shows the caller's abandoned pending orders so
	// they can be restored.
	if userID, ok := currentUserID(r); ok {
		if client, err := store.GetClientByUser(ctx, app.db, userID); err == nil {
			if pending, err := store.ListPendingOrders(ctx, app.db, client.ID); err == nil {
				resp.Pending = pending
			}
		}
	}

	return resp
}

func (app *application) handleGetCart(w http.ResponseWriter, r *http.Request) {
	c, err := app.loadCart(r)
	if err != nil {
		respondError(w, http.StatusInternalServerError, err.Error())
		return
	}

	respondJSON(w, http.StatusOK, app.cartResponse(r.Context(), r, c))
}

func (app *application) handleCartAdd(w http.ResponseWriter, r *http.Request) {
	productID, err := strconv.ParseInt(chi.URLParam(r, "productID"), 10, 64)
	if err != nil {
		respondError(w, http.StatusBadRequest, "Invalid product ID")
		return
	}

	quantity := 1
	var req struct {
		Quantity *int `json:"quantity"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err == nil && req.Quantity != nil {
		quantity = *req.Quantity
	}

	c, err := app.loadCart(r)
	if err != nil {
		respondError(w, http.StatusInternalServerError, err.Error())
		return
	}

	switch err := c.Add(r.Context(), productID, quantity); {
	case errors.Is(err, database.ErrInvalidQuantity):
		respondError(w, http.StatusBadRequest, err.Error())
		return
	case errors.Is(err, database.ErrProductNotFound):
		respondError(w, http.StatusNotFound, err.Error())
		return
	case err != nil:
		respondError(w, http.StatusInternalServerError, err.Error())
		return
	}

	respondJSON(w, http.StatusOK, app.cartResponse(r.Context(), r, c))
}

func (app *application) handleCartUpdate(w http.ResponseWriter, r *http.Request) {
	productID, err := strconv.ParseInt(chi.URLParam(r, "productID"), 10, 64)
	if err != nil {
		respondError(w, http.StatusBadRequest, "Invalid product ID")
		return
	}

	var req struct {
		Quantity int `json:"quantity"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		respondError(w, http.StatusBadRequest, "Invalid request body")
		return
	}

	c, err := app.loadCart(r)
	if err != nil {
		respondError(w, http.StatusInternalServerError, err.Error())
		return
	}

	// Updating a product that is no longer in the cart is a defined
	// no-op, not an error.
	if _, err := c.Update(r.Context(), productID, req.Quantity); err != nil {
		respondError(w, http.StatusInternalServerError, err.Error())
		return
	}

	respondJSON(w, http.StatusOK, app.cartResponse(r.Context(), r, c))
}

func (app *application) handleCartDelete(w http.ResponseWriter, r *http.Request) {
	productID, err := strconv.ParseInt(chi.URLParam(r, "productID"), 10, 64)
	if err != nil {
		respondError(w, http.StatusBadRequest, "Invalid product ID")
		return
	}

	c, err := app.loadCart(r)
	if err != nil {
		respondError(w, http.StatusInternalServerError, err.Error())
		return
	}

	if _, err := c.Delete(r.Context(), productID); err != nil {
		respondError(w, http.StatusInternalServerError, err.Error())
		return
	}

	respondJSON(w, http.StatusOK, app.cartResponse(r.Context(), r, c))
}

func (app *application) handleCartClear(w http.ResponseWriter, r *http.Request) {
	c, err := app.loadCart(r)
	if err != nil {
		respondError(w, http.StatusInternalServerError, err.Error())
		return
	}

	if err := c.Clear(r.Context()); err != nil {
		respondError(w, http.StatusInternalServerError, err.Error())
		return
	}

	respondJSON(w, http.StatusOK, app.cartResponse(r.Context(), r, c))
}

func (app *application) handleCartRestore(w http.ResponseWriter, r *http.Request) {
	orderID, err := strconv.ParseInt(chi.URLParam(r, "orderID"), 10, 64)
	if err != nil {
		respondError(w, http.StatusBadRequest, "Invalid order ID")
		return
	}

	userID, ok := currentUserID(r)
	if !ok {
		respondError(w, http.StatusUnauthorized, "Authentication required")
		return
	}

	client, err := store.GetClientByUser(r.Context(), app.db, userID)
	if err != nil {
		respondError(w, http.StatusNotFound, "No checkout profile for user")
		return
	}

	c, err := app.loadCart(r)
	if err != nil {
		respondError(w, http.StatusInternalServerError, err.Error())
		return
	}

	switch err := c.RestorePendingOrder(r.Context(), app.orders, orderID, client.ID); {
	case errors.Is(err, database.ErrOrderNotFound):
		respondError(w, http.StatusNotFound, err.Error())
		return
	case errors.Is(err, database.ErrOrderNotPending):
		respondError(w, http.StatusConflict, err.Error())
		return
	case err != nil:
		respondError(w, http.StatusInternalServerError, err.Error())
		return
	}

	respondJSON(w, http.StatusOK, app.cartResponse(r.Context(), r, c))
}

func (app *application) handleOrderConfirm(w http.ResponseWriter, r *http.Request) {
	userID, ok := currentUserID(r)
	if !ok {
		respondError(w, http.StatusUnauthorized, "Authentication required")
		return
	}

	var req struct {
		Phone   string `json:"phone"`
		Address string `json:"address"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		respondError(w, http.StatusBadRequest, "Invalid request body")
		return
	}

	c, err := app.loadCart(r)
	if err != nil {
		respondError(w, http.StatusInternalServerError, err.Error())
		return
	}

	// Confirming an empty cart is not an error, it just sends the
	// customer back to the cart page.
	if c.IsEmpty() {
		http.Redirect(w, r, "/cart", http.StatusSeeOther)
		return
	}

	client, err := store.GetOrCreateClient(r.Context(), app.db, userID, req.Phone, req.Address)
	if err != nil {
		respondError(w, http.StatusInternalServerError, err.Error())
		return
	}

	lines := make([]store.ConfirmLine, 0, len(c.Lines()))
	for _, line := range c.Lines() {
		lines = append(lines, store.ConfirmLine{ProductID: line.ProductID, Quantity: line.Quantity})
	}

	order, err := store.ConfirmOrder(r.Context(), app.db, client.ID, lines)
	if errors.Is(err, database.ErrBusy) {
		respondError(w, http.StatusConflict, "Another confirmation is in progress, retry shortly")
		return
	}
	if err != nil {
		respondError(w, http.StatusInternalServerError, err.Error())
		return
	}

	if err := c.Clear(r.Context()); err != nil {
		app.logger.ErrorContext(r.Context(), "clear cart after confirmation", "error", err)
	}

	if err := app.sessions.Set(r.Context(), sessionID(r), session.KeyOrderID, strconv.FormatInt(order.ID, 10)); err != nil {
		app.logger.ErrorContext(r.Context(), "stash order id in session", "error", err)
	}

	respondJSON(w, http.StatusCreated, order)
}

func (app *application) handleListOrders(w http.ResponseWriter, r *http.Request) {
	userID, ok := currentUserID(r)
	if !ok {
		respondError(w, http.StatusUnauthorized, "Authentication required")
		return
	}

	client, err := store.GetClientByUser(r.Context(), app.db, userID)
	if err != nil {
		respondError(w, http.StatusNotFound, "No checkout profile for user")
		return
	}

	limit, _ := strconv.Atoi(r.URL.Query().Get("limit"))
	if limit < 1 || limit > 100 {
		limit = 20
	}

	page, err := store.ListOrdersCursor(r.Context(), app.db, client.ID, r.URL.Query().Get("cursor"), limit)
	if err != nil {
		respondError(w, http.StatusInternalServerError, err.Error())
		return
	}

	respondJSON(w, http.StatusOK, page)
}

func (app *application) handleGetOrder(w http.ResponseWriter, r *http.Request) {
	orderID, err := strconv.ParseInt(chi.URLParam(r, "orderID"), 10, 64)
	if err != nil {
		respondError(w, http.StatusBadRequest, "Invalid order ID")
		return
	}

	userID, ok := currentUserID(r)
	if !ok {
		respondError(w, http.StatusUnauthorized, "Authentication required")
		return
	}

	client, err := store.GetClientByUser(r.Context(), app.db, userID)
	if err != nil {
		respondError(w, http.StatusNotFound, "No checkout profile for user")
		return
	}

	order, err := store.GetOrder(r.Context(), app.db, orderID)
	if err != nil || order.ClientID != client.ID {
		respondError(w, http.StatusNotFound, "Order not found")
		return
	}

	respondJSON(w, http.StatusOK, order)
}

// sessionOrderID reads the active order stashed between confirmation and
// payment completion.
func (app *application) sessionOrderID(r *http.Request) (int64, bool) {
	raw, ok, err := app.sessions.Get(r.Context(), sessionID(r), session.KeyOrderID)
	if err != nil || !ok {
		return 0, false
	}
	orderID, err := strconv.ParseInt(raw, 10, 64)
	if err != nil {
		return 0, false
	}
	return orderID, true
}

func (app *application) handlePaymentProcess(w http.ResponseWriter, r *http.Request) {
	userID, ok := currentUserID(r)
	if !ok {
		respondError(w, http.StatusUnauthorized, "Authentication required")
		return
	}

	orderID, ok := app.sessionOrderID(r)
	if !ok {
		respondError(w, http.StatusBadRequest, "No order found in session")
		return
	}

	user, err := store.GetUser(r.Context(), app.db, userID)
	if err != nil {
		respondError(w, http.StatusNotFound, err.Error())
		return
	}

	redirectURL, err := app.checkout.StartPayment(r.Context(), orderID, user.Email)
	switch {
	case errors.Is(err, database.ErrEmptyOrder):
		respondError(w, http.StatusBadRequest, "Order has no items")
		return
	case errors.Is(err, database.ErrOrderNotFound):
		respondError(w, http.StatusNotFound, err.Error())
		return
	case errors.Is(err, database.ErrGateway):
		respondError(w, http.StatusBadGateway, "Payment provider unavailable, try again later")
		return
	case err != nil:
		respondError(w, http.StatusInternalServerError, err.Error())
		return
	}

	respondJSON(w, http.StatusOK, map[string]string{"redirect_url": redirectURL})
}

func (app *application) handlePaymentCompleted(w http.ResponseWriter, r *http.Request) {
	userID, ok := currentUserID(r)
	if !ok {
		respondError(w, http.StatusUnauthorized, "Authentication required")
		return
	}

	orderID, ok := app.sessionOrderID(r)
	if !ok {
		http.Redirect(w, r, "/", http.StatusSeeOther)
		return
	}

	user, err := store.GetUser(r.Context(), app.db, userID)
	if err != nil {
		respondError(w, http.StatusNotFound, err.Error())
		return
	}

	order, err := app.checkout.OnPaymentCompleted(r.Context(), orderID, user.Email)
	if err != nil {
		respondError(w, http.StatusInternalServerError, err.Error())
		return
	}

	if err := app.sessions.Delete(r.Context(), sessionID(r), session.KeyOrderID); err != nil {
		app.logger.ErrorContext(r.Context(), "drop order id from session", "error", err)
	}

	respondJSON(w, http.StatusOK, order)
}

func (app *application) handlePaymentCanceled(w http.ResponseWriter, r *http.Request) {
	orderID, ok := app.sessionOrderID(r)
	if !ok {
		http.Redirect(w, r, "/", http.StatusSeeOther)
		return
	}

	if err := app.checkout.OnPaymentCanceled(r.Context(), orderID); err != nil {
		respondError(w, http.StatusInternalServerError, err.Error())
		return
	}

	// Drop only the gateway correlation; order and cart are untouched so
	// checkout can be retried.
	if err := app.sessions.Delete(r.Context(), sessionID(r), session.KeyOrderID); err != nil {
		app.logger.ErrorContext(r.Context(), "drop order id from session", "error", err)
	}

	respondJSON(w, http.StatusOK, map[string]string{"status": "canceled"})
}

func (app *application) handleCreateProduct(w http.ResponseWriter, r *http.Request) {
	var req struct {
		SKU         string `json:"sku"`
		Title       string `json:"title"`
		Description string `json:"description"`
		Price       string `json:"price"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		respondError(w, http.StatusBadRequest, "Invalid request body")
		return
	}

	price, err := money.ParsePrice(req.Price)
	if err != nil {
		respondError(w, http.StatusBadRequest, err.Error())
		return
	}

	product, err := store.CreateProduct(r.Context(), app.db, req.SKU, req.Title, req.Description, price)
	if err != nil {
		respondError(w, http.StatusInternalServerError, err.Error())
		return
	}

	respondJSON(w, http.StatusCreated, product)
}

func (app *application) handleListProducts(w http.ResponseWriter, r *http.Request) {
	page, _ := strconv.Atoi(r.URL.Query().Get("page"))
	if page < 1 {
		page = 1
	}
	pageSize, _ := strconv.Atoi(r.URL.Query().Get("page_size"))
	if pageSize < 1 || pageSize > 100 {
		pageSize = 20
	}

	result, err := store.ListProducts(r.Context(), app.db, page, pageSize)
	if err != nil {
		respondError(w, http.StatusInternalServerError, err.Error())
		return
	}

	respondJSON(w, http.StatusOK, result)
}

func (app *application) handleGetProduct(w http.ResponseWriter, r *http.Request) {
	productID, err := strconv.ParseInt(chi.URLParam(r, "productID"), 10, 64)
	if err != nil {
		respondError(w, http.StatusBadRequest, "Invalid product ID")
		return
	}

	product, err := store.GetProduct(r.Context(), app.db, productID)
	if err != nil {
		respondError(w, http.StatusNotFound, err.Error())
		return
	}

	respondJSON(w, http.StatusOK, product)
}

func (app *application) handleCreateUser(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Email string `json:"email"`
		Name  string `json:"name"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		respondError(w, http.StatusBadRequest, "Invalid request body")
		return
	}

	user, err := store.CreateUser(r.Context(), app.db, req.Email, req.Name)
	if err != nil {
		respondError(w, http.StatusInternalServerError, err.Error())
		return
	}

	respondJSON(w, http.StatusCreated, user)
}

func respondJSON(w http.ResponseWriter, status int, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(data); err != nil {
		slog.Error("encode JSON response", "error", err)
	}
}

func respondError(w http.ResponseWriter, status int, message string) {
	respondJSON(w, status, map[string]string{"error": message})
}
