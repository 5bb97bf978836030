package main

import (
	"errors"
	"io"
	"math/big"
	"net/http"

	"desci-meme/market"
	"desci-meme/services"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"
)

const (
	callerHeader    = "X-Caller"
	requestIDHeader = "X-Request-ID"
)

type routerDeps struct {
	APIKey   string
	Registry *services.RegistryService
	Content  *services.ContentService
	Gatherer prometheus.Gatherer
	Logger   *zap.Logger
}

func newRouter(deps routerDeps) *gin.Engine {
	router := gin.New()
	router.Use(gin.Recovery())
	router.Use(requestIDMiddleware(deps.Logger))
	router.Use(apiKeyAuthMiddleware(deps.APIKey))

	router.GET("/health", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"status": "ok", "tokens": deps.Registry.Factory.TokenCount()})
	})
	router.GET("/metrics", gin.WrapH(promhttp.HandlerFor(deps.Gatherer, promhttp.HandlerOpts{})))

	setupFactoryRoutes(router, deps.Registry)
	setupTokenRoutes(router, deps.Registry)
	setupAccountRoutes(router, deps.Registry)
	setupContentRoutes(router, deps.Content)
	return router
}

func apiKeyAuthMiddleware(apiKey string) gin.HandlerFunc {
	return func(c *gin.Context) {
		if apiKey == "" || c.Request.URL.Path == "/health" {
			c.Next()
			return
		}
		if c.GetHeader("X-API-KEY") != apiKey {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "Unauthorized: Invalid API Key"})
			return
		}
		c.Next()
	}
}

// requestIDMiddleware übernimmt oder erzeugt eine Request-ID und loggt jede Anfrage damit.
func requestIDMiddleware(log *zap.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		requestID := c.GetHeader(requestIDHeader)
		if requestID == "" {
			requestID = uuid.NewString()
		}
		c.Header(requestIDHeader, requestID)
		c.Next()
		log.Debug("HTTP request",
			zap.String("request_id", requestID),
			zap.String("method", c.Request.Method),
			zap.String("path", c.FullPath()),
			zap.Int("status", c.Writer.Status()))
	}
}

type factoryResponse struct {
	Owner      market.Address `json:"owner"`
	Address    market.Address `json:"address"`
	TokenCount int            `json:"token_count"`
	Decimals   uint8          `json:"decimals"`
}

type createTokenRequest struct {
	Name          string `json:"name"`
	Symbol        string `json:"symbol"`
	PDFHash       string `json:"pdf_hash"`
	ImageHash     string `json:"image_hash"`
	Description   string `json:"description"`
	Price         string `json:"price" binding:"required"`
	InitialSupply uint64 `json:"initial_supply"`
}

type buyRequest struct {
	Amount uint64 `json:"amount" binding:"required"`
	Value  string `json:"value" binding:"required"`
}

type priceRequest struct {
	Price string `json:"price" binding:"required"`
}

type depositRequest struct {
	Value string `json:"value" binding:"required"`
}

type tokenResponse struct {
	Record           market.ResearchRecord `json:"record"`
	Name             string                `json:"name"`
	Symbol           string                `json:"symbol"`
	PDFHash          string                `json:"pdf_hash"`
	ImageHash        string                `json:"image_hash"`
	MemeDescription  string                `json:"meme_description"`
	TokenPrice       string                `json:"token_price"`
	TokenPriceNative string                `json:"token_price_native"`
	IsActive         bool                  `json:"is_active"`
	InitialSupply    uint64                `json:"initial_supply"`
	Decimals         uint8                 `json:"decimals"`
	TotalSupply      string                `json:"total_supply"`
}

type balanceResponse struct {
	Holder  market.Address `json:"holder"`
	Balance string         `json:"balance"`
	Units   string         `json:"units"`
}

func newTokenResponse(tok *market.ResearchToken) tokenResponse {
	info := tok.Info()
	return tokenResponse{
		Record:           market.ResearchRecord{ID: info.ID, Researcher: info.Researcher, TokenAddress: info.Address},
		Name:             info.Name,
		Symbol:           info.Symbol,
		PDFHash:          info.PDFHash,
		ImageHash:        info.ImageHash,
		MemeDescription:  info.MemeDescription,
		TokenPrice:       info.TokenPrice.String(),
		TokenPriceNative: market.FormatNative(info.TokenPrice),
		IsActive:         info.IsActive,
		InitialSupply:    info.InitialSupply,
		Decimals:         info.Decimals,
		TotalSupply:      info.TotalSupply.String(),
	}
}

func setupFactoryRoutes(router *gin.Engine, registry *services.RegistryService) {
	router.GET("/factory", func(c *gin.Context) {
		f := registry.Factory
		c.JSON(http.StatusOK, factoryResponse{
			Owner:      f.Owner(),
			Address:    f.Address(),
			TokenCount: f.TokenCount(),
			Decimals:   f.Decimals(),
		})
	})

	router.GET("/researchers/:address/tokens", func(c *gin.Context) {
		researcher, err := market.ParseAddress(c.Param("address"))
		if err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": err.Error(), "code": "validation"})
			return
		}
		c.JSON(http.StatusOK, gin.H{
			"researcher": researcher,
			"token_ids":  registry.Factory.GetResearcherTokens(researcher),
		})
	})
}

func setupTokenRoutes(router *gin.Engine, registry *services.RegistryService) {
	rg := router.Group("/tokens")

	rg.GET("", func(c *gin.Context) {
		c.JSON(http.StatusOK, registry.Factory.Records())
	})

	rg.POST("", func(c *gin.Context) {
		caller, ok := requireCaller(c)
		if !ok {
			return
		}
		var req createTokenRequest
		if err := c.ShouldBindJSON(&req); err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid request body", "code": "validation"})
			return
		}
		price, ok := parseNative(c, req.Price)
		if !ok {
			return
		}
		rec, err := registry.CreateResearchToken(c.Request.Context(), caller, market.TokenParams{
			Name:          req.Name,
			Symbol:        req.Symbol,
			PDFHash:       req.PDFHash,
			ImageHash:     req.ImageHash,
			Description:   req.Description,
			Price:         price,
			InitialSupply: req.InitialSupply,
		})
		if err != nil {
			writeError(c, err)
			return
		}
		c.JSON(http.StatusCreated, rec)
	})

	rg.GET("/:ref", withToken(registry, func(c *gin.Context, tok *market.ResearchToken) {
		c.JSON(http.StatusOK, newTokenResponse(tok))
	}))

	rg.GET("/:ref/balances/:holder", withToken(registry, func(c *gin.Context, tok *market.ResearchToken) {
		holder, err := market.ParseAddress(c.Param("holder"))
		if err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": err.Error(), "code": "validation"})
			return
		}
		bal := tok.BalanceOf(holder)
		c.JSON(http.StatusOK, balanceResponse{
			Holder:  holder,
			Balance: bal.String(),
			Units:   market.FormatUnits(bal, int32(tok.Decimals())),
		})
	}))

	rg.POST("/:ref/buy", withToken(registry, func(c *gin.Context, tok *market.ResearchToken) {
		caller, ok := requireCaller(c)
		if !ok {
			return
		}
		var req buyRequest
		if err := c.ShouldBindJSON(&req); err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid request body", "code": "validation"})
			return
		}
		value, ok := parseNative(c, req.Value)
		if !ok {
			return
		}
		if err := registry.BuyTokens(c.Request.Context(), tok, caller, req.Amount, value); err != nil {
			writeError(c, err)
			return
		}
		bal := tok.BalanceOf(caller)
		c.JSON(http.StatusOK, balanceResponse{
			Holder:  caller,
			Balance: bal.String(),
			Units:   market.FormatUnits(bal, int32(tok.Decimals())),
		})
	}))

	rg.PUT("/:ref/price", withToken(registry, func(c *gin.Context, tok *market.ResearchToken) {
		caller, ok := requireCaller(c)
		if !ok {
			return
		}
		var req priceRequest
		if err := c.ShouldBindJSON(&req); err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid request body", "code": "validation"})
			return
		}
		price, ok := parseNative(c, req.Price)
		if !ok {
			return
		}
		if err := registry.UpdateTokenPrice(c.Request.Context(), tok, caller, price); err != nil {
			writeError(c, err)
			return
		}
		c.JSON(http.StatusOK, newTokenResponse(tok))
	}))

	rg.POST("/:ref/toggle", withToken(registry, func(c *gin.Context, tok *market.ResearchToken) {
		caller, ok := requireCaller(c)
		if !ok {
			return
		}
		active, err := registry.ToggleActive(c.Request.Context(), tok, caller)
		if err != nil {
			writeError(c, err)
			return
		}
		c.JSON(http.StatusOK, gin.H{"is_active": active})
	}))
}

func setupAccountRoutes(router *gin.Engine, registry *services.RegistryService) {
	rg := router.Group("/accounts")

	rg.GET("/:address", func(c *gin.Context) {
		account, err := market.ParseAddress(c.Param("address"))
		if err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": err.Error(), "code": "validation"})
			return
		}
		bal, err := registry.Balance(c.Request.Context(), account)
		if err != nil {
			writeError(c, err)
			return
		}
		c.JSON(http.StatusOK, gin.H{"address": account, "balance": bal.String(), "native": market.FormatNative(bal)})
	})

	rg.POST("/:address/deposit", func(c *gin.Context) {
		caller, ok := requireCaller(c)
		if !ok {
			return
		}
		account, err := market.ParseAddress(c.Param("address"))
		if err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": err.Error(), "code": "validation"})
			return
		}
		var req depositRequest
		if err := c.ShouldBindJSON(&req); err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid request body", "code": "validation"})
			return
		}
		value, ok := parseNative(c, req.Value)
		if !ok {
			return
		}
		if err := registry.Deposit(c.Request.Context(), caller, account, value); err != nil {
			writeError(c, err)
			return
		}
		bal, err := registry.Balance(c.Request.Context(), account)
		if err != nil {
			writeError(c, err)
			return
		}
		c.JSON(http.StatusOK, gin.H{"address": account, "balance": bal.String(), "native": market.FormatNative(bal)})
	})
}

func setupContentRoutes(router *gin.Engine, content *services.ContentService) {
	rg := router.Group("/content")

	rg.POST("/:kind", func(c *gin.Context) {
		body := c.Request.Body
		if content.MaxBytes > 0 {
			body = http.MaxBytesReader(c.Writer, body, content.MaxBytes)
		}
		data, err := io.ReadAll(body)
		if err != nil {
			var tooLarge *http.MaxBytesError
			if errors.As(err, &tooLarge) {
				c.JSON(http.StatusRequestEntityTooLarge, gin.H{"error": "content too large", "code": "validation"})
				return
			}
			c.JSON(http.StatusBadRequest, gin.H{"error": "could not read body", "code": "validation"})
			return
		}
		obj, err := content.Upload(c.Request.Context(), c.Param("kind"), data, c.ContentType())
		if err != nil {
			writeError(c, err)
			return
		}
		c.JSON(http.StatusCreated, obj)
	})

	rg.GET("/:hash", func(c *gin.Context) {
		obj, err := content.Lookup(c.Request.Context(), c.Param("hash"))
		if err != nil {
			writeError(c, err)
			return
		}
		c.JSON(http.StatusOK, obj)
	})
}

func withToken(registry *services.RegistryService, h func(*gin.Context, *market.ResearchToken)) gin.HandlerFunc {
	return func(c *gin.Context) {
		tok, err := registry.ResolveToken(c.Param("ref"))
		if err != nil {
			writeError(c, err)
			return
		}
		h(c, tok)
	}
}

func requireCaller(c *gin.Context) (market.Address, bool) {
	caller, err := market.ParseAddress(c.GetHeader(callerHeader))
	if err != nil || caller.IsZero() {
		c.JSON(http.StatusBadRequest, gin.H{"error": "missing or invalid " + callerHeader + " header", "code": "validation"})
		return market.ZeroAddress, false
	}
	return caller, true
}

func parseNative(c *gin.Context, s string) (*big.Int, bool) {
	v, err := market.ParseNative(s)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error(), "code": "validation"})
		return nil, false
	}
	return v, true
}

// writeError bildet fachliche Fehler auf HTTP-Status ab; alles andere ist ein 500.
func writeError(c *gin.Context, err error) {
	status := http.StatusInternalServerError
	switch market.KindOf(err) {
	case market.ErrValidation, market.ErrPaymentMismatch:
		status = http.StatusBadRequest
	case market.ErrUnauthorized:
		status = http.StatusForbidden
	case market.ErrNotFound:
		status = http.StatusNotFound
	case market.ErrInactiveSale, market.ErrSupplyExhausted:
		status = http.StatusConflict
	case market.ErrInsufficientFunds:
		status = http.StatusPaymentRequired
	}
	msg := err.Error()
	if status == http.StatusInternalServerError {
		msg = "internal error"
	}
	c.JSON(status, gin.H{"error": msg, "code": services.ErrorKind(err)})
}
