// internal/service/loyalty/interfaces/http_handler.go
package interfaces

import (
	"context"
	"encoding/json"
	"net/http"
	"strconv"
	"time"

	"github.com/pkg/errors"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/propagation"

	"restrohub/internal/service/loyalty/application"
	"restrohub/internal/service/loyalty/domain"
)

// LoyaltyHandler 封装了 loyalty 服务的 HTTP 处理器。
// 身份由网关注入的 X-User-ID 头提供（没有时退回 user_id 参数），
// 核心按约定直接信任，不在这里做鉴权。
type LoyaltyHandler struct {
	service *application.LoyaltyApplicationService
}

func NewLoyaltyHandler(service *application.LoyaltyApplicationService) *LoyaltyHandler {
	return &LoyaltyHandler{service: service}
}

// RegisterRoutes 在 ServeMux 上注册所有路由
func (h *LoyaltyHandler) RegisterRoutes(mux *http.ServeMux) {
	mux.HandleFunc("/api/loyalty/balance", h.handleGetBalance)
	mux.HandleFunc("/api/claim-reward", h.handleClaimReward)
	mux.HandleFunc("/api/loyalty/redeem", h.handleRedeemPoints)
	mux.HandleFunc("/api/loyalty/redeem-punch-card", h.handleRedeemPunchCard)
	mux.HandleFunc("/api/referral-code", h.handleGenerateReferralCode)
	mux.HandleFunc("/api/referral", h.handleProcessReferral)
	mux.HandleFunc("/api/coupons", h.handleListCoupons)
	mux.HandleFunc("/api/coupons/redeem", h.handleRedeemCoupon)
	mux.HandleFunc("/api/track/spending", h.handleTrackSpending)
	mux.HandleFunc("/api/track/spins", h.handleTrackSpin)
	mux.HandleFunc("/api/admin/coupons", h.handleListRestaurantCoupons)
	mux.HandleFunc("/api/admin/coupons/edit-expiry", h.handleEditCouponExpiry)
	mux.HandleFunc("/api/admin/register-restaurant", h.handleRegisterRestaurant)
	mux.HandleFunc("/api/admin/loyalty-settings", h.handleUpdateThresholds)
	mux.HandleFunc("/api/admin/loyalty-settings/history", h.handleSettingsHistory)
}

// extractCtx 从入站请求头恢复追踪上下文。
func extractCtx(r *http.Request) context.Context {
	propagator := otel.GetTextMapPropagator()
	return propagator.Extract(r.Context(), propagation.HeaderCarrier(r.Header))
}

// userID 取网关注入的身份，退回到查询参数/请求体字段。
func userID(r *http.Request) string {
	if id := r.Header.Get("X-User-ID"); id != "" {
		return id
	}
	return r.URL.Query().Get("user_id")
}

func writeJSON(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}

// writeError 把领域哨兵错误映射成 HTTP 状态码
func writeError(w http.ResponseWriter, err error) {
	var statusCode int
	switch {
	case errors.Is(err, domain.ErrRestaurantNotFound),
		errors.Is(err, domain.ErrAccountNotFound),
		errors.Is(err, domain.ErrCouponNotFound),
		errors.Is(err, domain.ErrInvalidReferralCode):
		statusCode = http.StatusNotFound
	case errors.Is(err, domain.ErrInvalidOffer),
		errors.Is(err, domain.ErrInvalidRestaurant),
		errors.Is(err, domain.ErrInvalidSpendAmount),
		errors.Is(err, domain.ErrInvalidThresholds),
		errors.Is(err, domain.ErrInvalidPointsValue),
		errors.Is(err, domain.ErrExpiryInPast),
		errors.Is(err, domain.ErrReferralNotEnabled):
		statusCode = http.StatusBadRequest
	case errors.Is(err, domain.ErrCouponNotOwned):
		statusCode = http.StatusForbidden
	case errors.Is(err, domain.ErrInsufficientBalance),
		errors.Is(err, domain.ErrInsufficientPunches),
		errors.Is(err, domain.ErrCouponAlreadyUsed),
		errors.Is(err, domain.ErrCouponExpired),
		errors.Is(err, domain.ErrSelfReferral),
		errors.Is(err, domain.ErrAlreadyReferred),
		errors.Is(err, domain.ErrReferralCapReached),
		errors.Is(err, domain.ErrClaimNotEligible):
		statusCode = http.StatusConflict
	case errors.Is(err, domain.ErrSpinCooldown):
		statusCode = http.StatusTooManyRequests
	case errors.Is(err, domain.ErrTransient):
		statusCode = http.StatusServiceUnavailable
	default:
		statusCode = http.StatusInternalServerError
	}
	writeJSON(w, statusCode, map[string]string{"error": err.Error()})
}

func (h *LoyaltyHandler) handleGetBalance(w http.ResponseWriter, r *http.Request) {
	ctx := extractCtx(r)
	uid := userID(r)
	if uid == "" {
		http.Error(w, "user_id is required", http.StatusBadRequest)
		return
	}
	resp, err := h.service.GetBalance(ctx, uid)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, resp)
}

func (h *LoyaltyHandler) handleClaimReward(w http.ResponseWriter, r *http.Request) {
	ctx := extractCtx(r)
	var body struct {
		UserID       string  `json:"userId"`
		RestaurantID string  `json:"restaurantId"`
		Offer        string  `json:"offer"`
		SpendAmount  float64 `json:"spendAmount"`
		FromSpin     bool    `json:"fromSpin"`
		PhoneNumber  string  `json:"phoneNumber"`
	}
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
		http.Error(w, "Invalid request body", http.StatusBadRequest)
		return
	}
	if id := r.Header.Get("X-User-ID"); id != "" {
		body.UserID = id
	}
	resp, err := h.service.ClaimReward(ctx, application.ClaimRequest{
		UserID:       body.UserID,
		RestaurantID: body.RestaurantID,
		Offer:        body.Offer,
		SpendAmount:  body.SpendAmount,
		FromSpin:     body.FromSpin,
		PhoneNumber:  body.PhoneNumber,
	})
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, resp)
}

func (h *LoyaltyHandler) handleRedeemPoints(w http.ResponseWriter, r *http.Request) {
	ctx := extractCtx(r)
	var body struct {
		UserID       string `json:"userId"`
		RestaurantID string `json:"restaurantId"`
		PointsValue  int64  `json:"pointsValue"`
	}
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
		http.Error(w, "Invalid request body", http.StatusBadRequest)
		return
	}
	if id := r.Header.Get("X-User-ID"); id != "" {
		body.UserID = id
	}
	resp, err := h.service.RedeemPoints(ctx, body.UserID, body.RestaurantID, body.PointsValue)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, resp)
}

func (h *LoyaltyHandler) handleRedeemPunchCard(w http.ResponseWriter, r *http.Request) {
	ctx := extractCtx(r)
	var body struct {
		UserID       string `json:"userId"`
		RestaurantID string `json:"restaurantId"`
	}
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
		http.Error(w, "Invalid request body", http.StatusBadRequest)
		return
	}
	if id := r.Header.Get("X-User-ID"); id != "" {
		body.UserID = id
	}
	resp, err := h.service.RedeemPunchCard(ctx, body.UserID, body.RestaurantID)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, resp)
}

func (h *LoyaltyHandler) handleGenerateReferralCode(w http.ResponseWriter, r *http.Request) {
	ctx := extractCtx(r)
	uid := userID(r)
	restaurantID := r.URL.Query().Get("restaurant_id")
	if uid == "" || restaurantID == "" {
		http.Error(w, "user_id and restaurant_id are required", http.StatusBadRequest)
		return
	}
	resp, err := h.service.GenerateReferralCode(ctx, uid, restaurantID)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, resp)
}

func (h *LoyaltyHandler) handleProcessReferral(w http.ResponseWriter, r *http.Request) {
	ctx := extractCtx(r)
	var body struct {
		UserID       string `json:"userId"`
		Code         string `json:"code"`
		RestaurantID string `json:"restaurantId"`
	}
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
		http.Error(w, "Invalid request body", http.StatusBadRequest)
		return
	}
	if id := r.Header.Get("X-User-ID"); id != "" {
		body.UserID = id
	}
	resp, err := h.service.ProcessReferral(ctx, body.UserID, body.Code, body.RestaurantID)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, resp)
}

func (h *LoyaltyHandler) handleListCoupons(w http.ResponseWriter, r *http.Request) {
	ctx := extractCtx(r)
	uid := userID(r)
	if uid == "" {
		http.Error(w, "user_id is required", http.StatusBadRequest)
		return
	}
	resp, err := h.service.ListCoupons(ctx, uid)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, resp)
}

func (h *LoyaltyHandler) handleRedeemCoupon(w http.ResponseWriter, r *http.Request) {
	ctx := extractCtx(r)
	var body struct {
		UserID     string `json:"userId"`
		CouponCode string `json:"couponCode"`
	}
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
		http.Error(w, "Invalid request body", http.StatusBadRequest)
		return
	}
	if id := r.Header.Get("X-User-ID"); id != "" {
		body.UserID = id
	}
	if err := h.service.RedeemCoupon(ctx, body.UserID, body.CouponCode); err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{
		"success": true,
		"message": "Coupon successfully redeemed.",
	})
}

func (h *LoyaltyHandler) handleTrackSpending(w http.ResponseWriter, r *http.Request) {
	ctx := extractCtx(r)
	var body struct {
		UserID       string  `json:"userId"`
		RestaurantID string  `json:"restaurantId"`
		Amount       float64 `json:"amount"`
	}
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
		http.Error(w, "Invalid request body", http.StatusBadRequest)
		return
	}
	if id := r.Header.Get("X-User-ID"); id != "" {
		body.UserID = id
	}
	resp, err := h.service.TrackSpending(ctx, body.UserID, body.RestaurantID, body.Amount)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, resp)
}

func (h *LoyaltyHandler) handleTrackSpin(w http.ResponseWriter, r *http.Request) {
	ctx := extractCtx(r)
	var body struct {
		UserID       string `json:"userId"`
		RestaurantID string `json:"restaurantId"`
	}
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
		http.Error(w, "Invalid request body", http.StatusBadRequest)
		return
	}
	if id := r.Header.Get("X-User-ID"); id != "" {
		body.UserID = id
	}
	resp, err := h.service.TrackSpin(ctx, body.UserID, body.RestaurantID)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, resp)
}

func (h *LoyaltyHandler) handleListRestaurantCoupons(w http.ResponseWriter, r *http.Request) {
	ctx := extractCtx(r)
	restaurantID := r.URL.Query().Get("restaurant_id")
	if restaurantID == "" {
		http.Error(w, "restaurant_id is required", http.StatusBadRequest)
		return
	}
	resp, err := h.service.ListRestaurantCoupons(ctx, restaurantID)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, resp)
}

func (h *LoyaltyHandler) handleEditCouponExpiry(w http.ResponseWriter, r *http.Request) {
	ctx := extractCtx(r)
	var body struct {
		CouponCode string `json:"couponCode"`
		Expiry     string `json:"expiry"` // YYYY-MM-DD
	}
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
		http.Error(w, "Invalid request body", http.StatusBadRequest)
		return
	}
	expiry, err := time.Parse("2006-01-02", body.Expiry)
	if err != nil {
		http.Error(w, "expiry must be YYYY-MM-DD", http.StatusBadRequest)
		return
	}
	if err := h.service.EditCouponExpiry(ctx, userID(r), body.CouponCode, expiry); err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{"success": true})
}

func (h *LoyaltyHandler) handleRegisterRestaurant(w http.ResponseWriter, r *http.Request) {
	ctx := extractCtx(r)
	var body struct {
		RestaurantID        string   `json:"restaurantId"`
		Name                string   `json:"name"`
		Offers              []string `json:"offers"`
		PointsPerRupee      float64  `json:"pointsPerRupee"`
		SpinPointsPerSpin   int64    `json:"spinPointsPerSpin"`
		CouponExpiryDays    int      `json:"couponExpiryDays"`
		MaxReferralsPerUser int      `json:"maxReferralsPerUser"`
		Thresholds          string   `json:"thresholds"`
		ClaimRule           string   `json:"claimRule"`
	}
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
		http.Error(w, "Invalid request body", http.StatusBadRequest)
		return
	}
	settings, err := h.service.RegisterRestaurant(ctx, userID(r), application.RegisterRestaurantRequest{
		RestaurantID:        body.RestaurantID,
		Name:                body.Name,
		Offers:              body.Offers,
		PointsPerRupee:      body.PointsPerRupee,
		SpinPointsPerSpin:   body.SpinPointsPerSpin,
		CouponExpiryDays:    body.CouponExpiryDays,
		MaxReferralsPerUser: body.MaxReferralsPerUser,
		Thresholds:          body.Thresholds,
		ClaimRule:           body.ClaimRule,
	})
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, map[string]interface{}{
		"restaurantId": settings.RestaurantID,
		"name":         settings.Name,
		"offers":       settings.Offers,
	})
}

func (h *LoyaltyHandler) handleUpdateThresholds(w http.ResponseWriter, r *http.Request) {
	ctx := extractCtx(r)
	var body struct {
		RestaurantID   string `json:"restaurantId"`
		Thresholds     string `json:"thresholds"` // "1000:20%,2000:30%"
		PointsPerRupee string `json:"pointsPerRupee"`
	}
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
		http.Error(w, "Invalid request body", http.StatusBadRequest)
		return
	}
	ppr := 0.0
	if body.PointsPerRupee != "" {
		parsed, err := strconv.ParseFloat(body.PointsPerRupee, 64)
		if err != nil || parsed < 0 {
			http.Error(w, "pointsPerRupee must be a non-negative number", http.StatusBadRequest)
			return
		}
		ppr = parsed
	}
	report, err := h.service.UpdateThresholds(ctx, body.RestaurantID, body.Thresholds, ppr)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, report)
}

func (h *LoyaltyHandler) handleSettingsHistory(w http.ResponseWriter, r *http.Request) {
	ctx := extractCtx(r)
	restaurantID := r.URL.Query().Get("restaurant_id")
	if restaurantID == "" {
		http.Error(w, "restaurant_id is required", http.StatusBadRequest)
		return
	}
	resp, err := h.service.SettingsHistory(ctx, restaurantID)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, resp)
}
