package main

import (
	"context"
	"errors"
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"
	"github.com/shopspring/decimal"

	"github.com/foretdhiver1228/storefront/internal/auth"
	"github.com/foretdhiver1228/storefront/internal/cart"
	"github.com/foretdhiver1228/storefront/internal/checkout"
	"github.com/foretdhiver1228/storefront/internal/httpx"
	"github.com/foretdhiver1228/storefront/internal/order"
	"github.com/foretdhiver1228/storefront/internal/product"
	"github.com/foretdhiver1228/storefront/internal/user"
)

type orderLister interface {
	ListByUser(ctx context.Context, userID string, limit, offset int) ([]order.Order, error)
}

type finalizer interface {
	Finalize(ctx context.Context, req checkout.Request) checkout.Result
}

type cookieConfig struct {
	name   string
	secure bool
}

type api struct {
	products product.Repository
	carts    cart.Repository
	orders   orderLister
	users    *user.Service
	sessions *auth.Sessions
	checkout finalizer
	cookie   cookieConfig
}

func (a *api) routes(r *gin.Engine) {
	r.GET("/healthz", func(c *gin.Context) { c.String(http.StatusOK, "ok") })

	g := r.Group("/api")
	g.POST("/auth/register", registerHandler(a.users, a.sessions, a.cookie))
	g.POST("/auth/login", loginHandler(a.users, a.sessions, a.cookie))
	g.POST("/auth/logout", logoutHandler(a.cookie))
	g.GET("/products", listProductsHandler(a.products))
	g.GET("/products/:id", getProductHandler(a.products))

	authed := g.Group("", httpx.Auth(a.sessions, a.cookie.name))
	authed.GET("/auth/me", meHandler(a.users))
	authed.POST("/products", httpx.RequireCapability(a.users, auth.ManageProducts), createProductHandler(a.products))
	authed.GET("/cart", listCartHandler(a.carts))
	authed.POST("/cart", addCartItemHandler(a.carts))
	authed.DELETE("/cart", clearCartHandler(a.carts))
	authed.POST("/cart/delete-selected", deleteSelectedHandler(a.carts))
	authed.GET("/orders", listOrdersHandler(a.orders))
	authed.POST("/checkout/finalize", finalizeHandler(a.checkout))
	authed.POST("/admin/set-role", httpx.RequireCapability(a.users, auth.ManageRoles), setRoleHandler(a.users))
}

func startSession(c *gin.Context, sessions *auth.Sessions, cookie cookieConfig, userID string) bool {
	token, err := sessions.Issue(userID)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "could not start session"})
		return false
	}
	c.SetSameSite(http.SameSiteLaxMode)
	c.SetCookie(cookie.name, token, int(sessions.TTL().Seconds()), "/", "", cookie.secure, true)
	return true
}

// @Summary Create an account and start a session
// @Tags auth
// @Accept json
// @Produce json
// @Param body body user.CredentialsRequest true "credentials"
// @Success 201 {object} user.User
// @Failure 400 {object} product.HTTPError
// @Failure 409 {object} product.HTTPError
// @Router /auth/register [post]
func registerHandler(users *user.Service, sessions *auth.Sessions, cookie cookieConfig) gin.HandlerFunc {
	return func(c *gin.Context) {
		var req user.CredentialsRequest
		if err := c.ShouldBindJSON(&req); err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": "invalid json"})
			return
		}
		u, err := users.Register(c.Request.Context(), req.Email, req.Password)
		switch {
		case errors.Is(err, user.ErrInvalidInput):
			c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
			return
		case errors.Is(err, user.ErrAlreadyExist):
			c.JSON(http.StatusConflict, gin.H{"error": "email already registered"})
			return
		case err != nil:
			_ = c.Error(err)
			c.JSON(http.StatusInternalServerError, gin.H{"error": "could not register"})
			return
		}
		if !startSession(c, sessions, cookie, u.ID) {
			return
		}
		c.JSON(http.StatusCreated, u)
	}
}

// @Summary Start a session
// @Tags auth
// @Accept json
// @Produce json
// @Param body body user.CredentialsRequest true "credentials"
// @Success 200 {object} user.User
// @Failure 401 {object} product.HTTPError
// @Router /auth/login [post]
func loginHandler(users *user.Service, sessions *auth.Sessions, cookie cookieConfig) gin.HandlerFunc {
	return func(c *gin.Context) {
		var req user.CredentialsRequest
		if err := c.ShouldBindJSON(&req); err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": "invalid json"})
			return
		}
		u, err := users.Authenticate(c.Request.Context(), req.Email, req.Password)
		if errors.Is(err, user.ErrInvalidCredentials) {
			c.JSON(http.StatusUnauthorized, gin.H{"error": err.Error()})
			return
		}
		if err != nil {
			_ = c.Error(err)
			c.JSON(http.StatusInternalServerError, gin.H{"error": "could not log in"})
			return
		}
		if !startSession(c, sessions, cookie, u.ID) {
			return
		}
		c.JSON(http.StatusOK, u)
	}
}

func logoutHandler(cookie cookieConfig) gin.HandlerFunc {
	return func(c *gin.Context) {
		c.SetSameSite(http.SameSiteLaxMode)
		c.SetCookie(cookie.name, "", -1, "/", "", cookie.secure, true)
		c.Status(http.StatusNoContent)
	}
}

func meHandler(users *user.Service) gin.HandlerFunc {
	return func(c *gin.Context) {
		u, err := users.Get(c.Request.Context(), httpx.UserID(c))
		if err != nil {
			c.JSON(http.StatusUnauthorized, gin.H{"error": "invalid session"})
			return
		}
		c.JSON(http.StatusOK, u)
	}
}

// @Summary List products
// @Tags products
// @Produce json
// @Param q query string false "search"
// @Param limit query int false "page size"
// @Param offset query int false "offset"
// @Success 200 {object} product.ListResponse
// @Router /products [get]
func listProductsHandler(repo product.Repository) gin.HandlerFunc {
	return func(c *gin.Context) {
		limit, _ := strconv.Atoi(c.DefaultQuery("limit", "20"))
		offset, _ := strconv.Atoi(c.DefaultQuery("offset", "0"))
		q := product.Query{Q: c.Query("q"), Limit: limit, Offset: offset}.Normalize()

		items, err := repo.List(c.Request.Context(), q)
		if err != nil {
			_ = c.Error(err)
			c.JSON(http.StatusInternalServerError, gin.H{"error": "could not list products"})
			return
		}
		c.JSON(http.StatusOK, product.ListResponse{Q: q.Q, Limit: q.Limit, Offset: q.Offset, Items: items})
	}
}

// @Summary Get a product
// @Tags products
// @Produce json
// @Param id path string true "product id"
// @Success 200 {object} product.Product
// @Failure 404 {object} product.HTTPError
// @Router /products/{id} [get]
func getProductHandler(repo product.Repository) gin.HandlerFunc {
	return func(c *gin.Context) {
		p, err := repo.GetByID(c.Request.Context(), c.Param("id"))
		if errors.Is(err, product.ErrNotFound) {
			c.JSON(http.StatusNotFound, gin.H{"error": "not found"})
			return
		}
		if err != nil {
			_ = c.Error(err)
			c.JSON(http.StatusInternalServerError, gin.H{"error": "could not load product"})
			return
		}
		c.JSON(http.StatusOK, p)
	}
}

// @Summary Create a product
// @Tags products
// @Accept json
// @Produce json
// @Param body body product.CreateProductRequest true "product"
// @Success 201 {object} product.Product
// @Failure 400 {object} product.HTTPError
// @Failure 403 {object} product.HTTPError
// @Router /products [post]
func createProductHandler(repo product.Repository) gin.HandlerFunc {
	return func(c *gin.Context) {
		var req product.CreateProductRequest
		if err := c.ShouldBindJSON(&req); err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": "invalid json"})
			return
		}
		p, err := req.Build(httpx.UserID(c))
		if err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
			return
		}
		if err := repo.Create(c.Request.Context(), p); err != nil {
			_ = c.Error(err)
			c.JSON(http.StatusInternalServerError, gin.H{"error": "could not create product"})
			return
		}
		c.JSON(http.StatusCreated, p)
	}
}

func listCartHandler(repo cart.Repository) gin.HandlerFunc {
	return func(c *gin.Context) {
		items, err := repo.List(c.Request.Context(), httpx.UserID(c))
		if err != nil {
			_ = c.Error(err)
			c.JSON(http.StatusInternalServerError, gin.H{"error": "could not load cart"})
			return
		}
		c.JSON(http.StatusOK, gin.H{"items": items})
	}
}

// addCartItemHandler merges with an existing line for the same product.
func addCartItemHandler(repo cart.Repository) gin.HandlerFunc {
	return func(c *gin.Context) {
		var req cart.AddItemRequest
		if err := c.ShouldBindJSON(&req); err != nil || req.ProductID == "" {
			c.JSON(http.StatusBadRequest, gin.H{"error": "product_id is required"})
			return
		}
		if req.Quantity == 0 {
			req.Quantity = 1
		}
		it, err := repo.AddItem(c.Request.Context(), httpx.UserID(c), req.ProductID, req.Quantity)
		switch {
		case errors.Is(err, cart.ErrInvalidQuantity):
			c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
			return
		case errors.Is(err, cart.ErrProductNotFound):
			c.JSON(http.StatusNotFound, gin.H{"error": err.Error()})
			return
		case err != nil:
			_ = c.Error(err)
			c.JSON(http.StatusInternalServerError, gin.H{"error": "could not add item"})
			return
		}
		c.JSON(http.StatusOK, it)
	}
}

func deleteSelectedHandler(repo cart.Repository) gin.HandlerFunc {
	return func(c *gin.Context) {
		var req cart.DeleteSelectedRequest
		if err := c.ShouldBindJSON(&req); err != nil || len(req.ItemIDs) == 0 {
			c.JSON(http.StatusBadRequest, gin.H{"error": "itemIds is required"})
			return
		}
		n, err := repo.RemoveSelected(c.Request.Context(), httpx.UserID(c), req.ItemIDs)
		if err != nil {
			_ = c.Error(err)
			c.JSON(http.StatusInternalServerError, gin.H{"error": "could not remove items"})
			return
		}
		c.JSON(http.StatusOK, gin.H{"deleted": n})
	}
}

func clearCartHandler(repo cart.Repository) gin.HandlerFunc {
	return func(c *gin.Context) {
		n, err := repo.Clear(c.Request.Context(), httpx.UserID(c))
		if err != nil {
			_ = c.Error(err)
			c.JSON(http.StatusInternalServerError, gin.H{"error": "could not clear cart"})
			return
		}
		c.JSON(http.StatusOK, gin.H{"deleted": n})
	}
}

// @Summary Order history, newest first
// @Tags orders
// @Produce json
// @Success 200 {object} order.ListResponse
// @Router /orders [get]
func listOrdersHandler(repo orderLister) gin.HandlerFunc {
	return func(c *gin.Context) {
		limit, _ := strconv.Atoi(c.DefaultQuery("limit", "20"))
		offset, _ := strconv.Atoi(c.DefaultQuery("offset", "0"))
		items, err := repo.ListByUser(c.Request.Context(), httpx.UserID(c), limit, offset)
		if err != nil {
			_ = c.Error(err)
			c.JSON(http.StatusInternalServerError, gin.H{"error": "could not load orders"})
			return
		}
		c.JSON(http.StatusOK, order.ListResponse{Items: items})
	}
}

var failureStatus = map[checkout.Reason]int{
	checkout.ReasonInvalidRequest:     http.StatusBadRequest,
	checkout.ReasonPaymentRejected:    http.StatusPaymentRequired,
	checkout.ReasonPaymentMismatch:    http.StatusConflict,
	checkout.ReasonAmountMismatch:     http.StatusConflict,
	checkout.ReasonEmptyCart:          http.StatusConflict,
	checkout.ReasonDuplicatePayment:   http.StatusConflict,
	checkout.ReasonInProgress:         http.StatusConflict,
	checkout.ReasonGatewayUnavailable: http.StatusBadGateway,
	checkout.ReasonStorageError:       http.StatusInternalServerError,
}

// @Summary Verify the payment, write the order and clear the cart
// @Tags checkout
// @Accept json
// @Produce json
// @Param body body order.FinalizeRequest true "gateway callback parameters"
// @Success 200 {object} order.FinalizeResponse
// @Failure 402 {object} order.FinalizeResponse
// @Failure 409 {object} order.FinalizeResponse
// @Failure 502 {object} order.FinalizeResponse
// @Router /checkout/finalize [post]
func finalizeHandler(p finalizer) gin.HandlerFunc {
	return func(c *gin.Context) {
		var req order.FinalizeRequest
		if err := c.ShouldBindJSON(&req); err != nil {
			c.JSON(http.StatusBadRequest, order.FinalizeResponse{Status: order.StatusFailed, Reason: string(checkout.ReasonInvalidRequest)})
			return
		}
		amount, err := decimal.NewFromString(req.Amount.String())
		if err != nil {
			c.JSON(http.StatusBadRequest, order.FinalizeResponse{Status: order.StatusFailed, Reason: string(checkout.ReasonInvalidRequest)})
			return
		}

		res := p.Finalize(c.Request.Context(), checkout.Request{
			UserID:     httpx.UserID(c),
			PaymentKey: req.PaymentKey,
			OrderID:    req.OrderID,
			Amount:     amount,
		})

		out := order.FinalizeResponse{OrderID: res.OrderID, Status: res.Status()}
		for _, w := range res.Warnings {
			out.Warnings = append(out.Warnings, string(w))
		}
		if res.Completed() {
			c.JSON(http.StatusOK, out)
			return
		}
		out.Reason = string(res.Reason)
		status, ok := failureStatus[res.Reason]
		if !ok {
			status = http.StatusInternalServerError
		}
		c.JSON(status, out)
	}
}

// @Summary Replace a user's roles
// @Tags admin
// @Accept json
// @Produce json
// @Param body body user.SetRoleRequest true "assignment"
// @Success 200 {object} map[string]string
// @Failure 403 {object} product.HTTPError
// @Router /admin/set-role [post]
func setRoleHandler(users *user.Service) gin.HandlerFunc {
	return func(c *gin.Context) {
		var req user.SetRoleRequest
		if err := c.ShouldBindJSON(&req); err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": "invalid json"})
			return
		}
		err := users.SetRole(c.Request.Context(), req.UserID, req.Role)
		switch {
		case errors.Is(err, user.ErrInvalidInput), errors.Is(err, user.ErrUnknownRole):
			c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
			return
		case errors.Is(err, user.ErrNotFound):
			c.JSON(http.StatusNotFound, gin.H{"error": "user not found"})
			return
		case err != nil:
			_ = c.Error(err)
			c.JSON(http.StatusInternalServerError, gin.H{"error": "could not update roles"})
			return
		}
		c.JSON(http.StatusOK, gin.H{"message": "role updated", "userId": req.UserID, "role": req.Role})
	}
}
