package main

import (
	"context"
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"

	authgin "github.com/open-rails/claimskit/adapters/gin"
	"github.com/open-rails/claimskit/authorizer"
	"github.com/open-rails/claimskit/identity"
)

// requestLimiter throttles callers by key. Satisfied by the memory and redis
// limiters.
type requestLimiter interface {
	Allow(ctx context.Context, key string) (bool, error)
}

// Company is a demo business entity scoped to a data region.
type Company struct {
	ID     int    `json:"id"`
	Name   string `json:"name"`
	Region string `json:"region"`
}

// Transaction is a demo business entity belonging to a company.
type Transaction struct {
	ID        int     `json:"id"`
	CompanyID int     `json:"company_id"`
	Amount    float64 `json:"amount"`
	Currency  string  `json:"currency"`
}

type dataset struct {
	companies    []Company
	transactions map[int][]Transaction
}

func seedDataset() *dataset {
	return &dataset{
		companies: []Company{
			{ID: 1, Name: "Company 1", Region: "usa"},
			{ID: 2, Name: "Company 2", Region: "usa"},
			{ID: 3, Name: "Company 3", Region: "europe"},
			{ID: 4, Name: "Company 4", Region: "europe"},
		},
		transactions: map[int][]Transaction{
			1: {{ID: 10, CompanyID: 1, Amount: 100.00, Currency: "USD"}, {ID: 11, CompanyID: 1, Amount: 250.50, Currency: "USD"}},
			2: {{ID: 20, CompanyID: 2, Amount: 75.25, Currency: "USD"}},
			3: {{ID: 30, CompanyID: 3, Amount: 300.00, Currency: "EUR"}},
			4: {{ID: 40, CompanyID: 4, Amount: 42.00, Currency: "EUR"}, {ID: 41, CompanyID: 4, Amount: 9.99, Currency: "EUR"}},
		},
	}
}

func newRouter(a *authorizer.Authorizer, data *dataset, limiter requestLimiter) *gin.Engine {
	r := gin.New()
	r.Use(gin.Recovery())

	api := r.Group("/api")
	if limiter != nil {
		api.Use(throttle(limiter))
	}
	api.Use(authgin.RequireAuth(a))
	api.GET("/claims", handleClaims)
	api.GET("/companies", handleCompanies(data))
	api.GET("/companies/:id/transactions", handleTransactions(data))
	return r
}

// throttle limits requests per client IP before any token work happens, so a
// flood of garbage tokens cannot drive JWKS or introspection traffic. Limiter
// transport failures let the request through: throttling is protection, not a
// dependency.
func throttle(limiter requestLimiter) gin.HandlerFunc {
	return func(c *gin.Context) {
		ok, err := limiter.Allow(c.Request.Context(), c.ClientIP())
		if err == nil && !ok {
			c.AbortWithStatusJSON(http.StatusTooManyRequests, gin.H{"code": "rate_limited"})
			return
		}
		c.Next()
	}
}

func userClaims(c *gin.Context) (*identity.UserClaims, bool) {
	principal, ok := authgin.CurrentClaims(c)
	if !ok {
		return nil, false
	}
	uc, ok := principal.Custom.(*identity.UserClaims)
	return uc, ok
}

// handleClaims echoes the resolved principal so callers can inspect what the
// pipeline produced for their token.
func handleClaims(c *gin.Context) {
	principal, ok := authgin.CurrentClaims(c)
	if !ok {
		c.JSON(http.StatusInternalServerError, gin.H{"code": "server_error"})
		return
	}
	uc, _ := principal.Custom.(*identity.UserClaims)
	c.JSON(http.StatusOK, gin.H{
		"subject": principal.Base.Subject,
		"scopes":  principal.Base.Scopes,
		"user": gin.H{
			"given_name":  principal.UserInfo.GivenName,
			"family_name": principal.UserInfo.FamilyName,
			"email":       principal.UserInfo.Email,
		},
		"is_admin":        uc != nil && uc.IsAdmin,
		"regions_covered": regionsOf(uc),
	})
}

func regionsOf(uc *identity.UserClaims) []string {
	if uc == nil {
		return nil
	}
	return uc.RegionsCovered
}

// handleCompanies lists the companies the caller's regions cover.
func handleCompanies(data *dataset) gin.HandlerFunc {
	return func(c *gin.Context) {
		uc, ok := userClaims(c)
		if !ok {
			c.JSON(http.StatusInternalServerError, gin.H{"code": "server_error"})
			return
		}
		visible := make([]Company, 0, len(data.companies))
		for _, company := range data.companies {
			if uc.CoversRegion(company.Region) {
				visible = append(visible, company)
			}
		}
		c.JSON(http.StatusOK, gin.H{"data": visible})
	}
}

// handleTransactions lists a company's transactions. Companies outside the
// caller's regions are reported as not found rather than forbidden, so their
// existence is not revealed.
func handleTransactions(data *dataset) gin.HandlerFunc {
	return func(c *gin.Context) {
		uc, ok := userClaims(c)
		if !ok {
			c.JSON(http.StatusInternalServerError, gin.H{"code": "server_error"})
			return
		}
		id, err := strconv.Atoi(c.Param("id"))
		if err != nil {
			c.JSON(http.StatusNotFound, gin.H{"code": "not_found"})
			return
		}
		for _, company := range data.companies {
			if company.ID == id && uc.CoversRegion(company.Region) {
				c.JSON(http.StatusOK, gin.H{"data": data.transactions[id]})
				return
			}
		}
		c.JSON(http.StatusNotFound, gin.H{"code": "not_found"})
	}
}
