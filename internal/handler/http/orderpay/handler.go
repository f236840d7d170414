package orderpay_http

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"orderpay/internal/app/plans"
	"orderpay/internal/app/reconciliation"
	"orderpay/internal/domain"
	"orderpay/internal/ledger"
	"orderpay/internal/orderstate"
	"orderpay/internal/payhere"
)

// OrderService is implemented by reconciliation.Service.
type OrderService interface {
	CreateOrder(ctx context.Context, actor domain.Principal, in reconciliation.CreateOrderInput) (*domain.Order, error)
	ConfirmOrder(ctx context.Context, actor domain.Principal, orderID string, in orderstate.ConfirmInput) (*domain.Order, error)
	CancelOrder(ctx context.Context, actor domain.Principal, orderID, reason string) (*domain.Order, error)
	CompleteOrder(ctx context.Context, actor domain.Principal, orderID string) (*domain.Order, error)
	GetOrder(ctx context.Context, actor domain.Principal, orderID string) (*reconciliation.OrderSummary, error)
	ListOrders(ctx context.Context, actor domain.Principal) ([]domain.Order, error)
	InitiatePayHere(ctx context.Context, actor domain.Principal, orderID string, planID *string) (*payhere.Checkout, error)
	OpenBankTransfer(ctx context.Context, actor domain.Principal, orderID string, planID *string) (*domain.Payment, error)
	UploadSlip(ctx context.Context, actor domain.Principal, paymentID string, in ledger.SlipInput) (*domain.Installment, bool, error)
	ConfirmInstallment(ctx context.Context, actor domain.Principal, installmentID string, reference *string) (*domain.Installment, error)
	RejectInstallment(ctx context.Context, actor domain.Principal, installmentID, reason string) (*domain.Installment, error)
	HandlePayHereNotification(ctx context.Context, fields map[string]string) error
}

// PlanService is implemented by plans.Service.
type PlanService interface {
	ListActivePlans(ctx context.Context) ([]domain.PaymentPlan, error)
	GetPlan(ctx context.Context, id string) (*domain.PaymentPlan, error)
	CreatePlan(ctx context.Context, actor domain.Principal, in plans.CreatePlanInput) (*domain.PaymentPlan, error)
	SetPlanActive(ctx context.Context, actor domain.Principal, id string, active bool) (*domain.PaymentPlan, error)
}

type Handler struct {
	orders OrderService
	plans  PlanService
	logger *zap.Logger
}

func NewHandler(orders OrderService, plans PlanService, l *zap.Logger) *Handler {
	return &Handler{orders: orders, plans: plans, logger: l}
}

type CreateOrderRequest struct {
	OrderType          domain.OrderType `json:"order_type"`
	DesignID           *string          `json:"design_id"`
	CustomizationNotes string           `json:"customization_notes"`
	EventDate          *time.Time       `json:"event_date"`
}

type ConfirmOrderRequest struct {
	BasePrice            *decimal.Decimal `json:"base_price"`
	TransportationCost   decimal.Decimal  `json:"transportation_cost"`
	AdditionalRentalCost decimal.Decimal  `json:"additional_rental_cost"`
	PlanID               *string          `json:"plan_id"`
}

type ReasonRequest struct {
	Reason string `json:"reason"`
}

type OpenPaymentRequest struct {
	PlanID *string `json:"plan_id"`
}

type UploadSlipRequest struct {
	SlipURL   string           `json:"slip_url"`
	Amount    *decimal.Decimal `json:"amount"`
	IsPartial bool             `json:"is_partial"`
	Notes     string           `json:"notes"`
}

type ConfirmInstallmentRequest struct {
	Reference *string `json:"reference"`
}

type CreatePlanRequest struct {
	Name        string            `json:"name"`
	Description string            `json:"description"`
	Percentages []decimal.Decimal `json:"percentages"`
}

type UpdatePlanRequest struct {
	IsActive *bool `json:"is_active"`
}

type OrderResponse struct {
	ID                       string     `json:"id"`
	OrderNumber              string     `json:"order_number"`
	OrderType                string     `json:"order_type"`
	CustomerUsername         string     `json:"customer_username"`
	DesignID                 *string    `json:"design_id,omitempty"`
	CustomizationNotes       string     `json:"customization_notes,omitempty"`
	EventDate                *time.Time `json:"event_date,omitempty"`
	Status                   string     `json:"status"`
	PaymentStatus            string     `json:"payment_status"`
	BasePrice                *string    `json:"base_price"`
	TransportationCost       string     `json:"transportation_cost"`
	AdditionalRentalCost     string     `json:"additional_rental_cost"`
	TotalPrice               *string    `json:"total_price"`
	InstallmentPlanID        *string    `json:"installment_plan_id,omitempty"`
	CurrentInstallmentNumber *int       `json:"current_installment_number,omitempty"`
	CancellationReason       string     `json:"cancellation_reason,omitempty"`
	CreatedAt                time.Time  `json:"created_at"`
	UpdatedAt                time.Time  `json:"updated_at"`
}

type OrderSummaryResponse struct {
	Order     OrderResponse     `json:"order"`
	Payments  []PaymentResponse `json:"payments"`
	TotalPaid string            `json:"total_paid"`
	Remaining string            `json:"remaining"`
}

type PaymentResponse struct {
	ID                 string                `json:"id"`
	OrderID            string                `json:"order_id"`
	PlanID             *string               `json:"plan_id,omitempty"`
	TotalAmount        string                `json:"total_amount"`
	PaymentMethod      string                `json:"payment_method"`
	PaymentType        string                `json:"payment_type"`
	Status             string                `json:"status"`
	CurrentInstallment int                   `json:"current_installment"`
	TotalInstallments  int                   `json:"total_installments"`
	Installments       []InstallmentResponse `json:"installments"`
	CreatedAt          time.Time             `json:"created_at"`
}

type InstallmentResponse struct {
	ID                string     `json:"id"`
	PaymentID         string     `json:"payment_id"`
	InstallmentNumber int        `json:"installment_number"`
	Amount            string     `json:"amount"`
	Percentage        string     `json:"percentage"`
	Status            string     `json:"status"`
	PaymentMethod     string     `json:"payment_method"`
	TransactionID     *string    `json:"transaction_id,omitempty"`
	PaymentSlipURL    *string    `json:"payment_slip_url,omitempty"`
	SubmittedAmount   *string    `json:"submitted_amount,omitempty"`
	IsPartial         bool       `json:"is_partial"`
	Notes             string     `json:"notes,omitempty"`
	VerifiedBy        *string    `json:"verified_by,omitempty"`
	ConfirmationDate  *time.Time `json:"confirmation_date,omitempty"`
	RejectionReason   *string    `json:"rejection_reason,omitempty"`
	AmountMismatch    bool       `json:"amount_mismatch,omitempty"`
}

type PlanResponse struct {
	ID                   string   `json:"id"`
	Name                 string   `json:"name"`
	Description          string   `json:"description"`
	NumberOfInstallments int      `json:"number_of_installments"`
	Percentages          []string `json:"percentages"`
	IsActive             bool     `json:"is_active"`
}

func money(d decimal.Decimal) string {
	return d.StringFixed(2)
}

func moneyPtr(d *decimal.Decimal) *string {
	if d == nil {
		return nil
	}
	s := money(*d)
	return &s
}

func toOrderResponse(o *domain.Order) OrderResponse {
	return OrderResponse{
		ID:                       o.ID,
		OrderNumber:              o.OrderNumber,
		OrderType:                string(o.OrderType),
		CustomerUsername:         o.CustomerUsername,
		DesignID:                 o.DesignID,
		CustomizationNotes:       o.CustomizationNotes,
		EventDate:                o.EventDate,
		Status:                   string(o.Status),
		PaymentStatus:            string(o.PaymentStatus),
		BasePrice:                moneyPtr(o.BasePrice),
		TransportationCost:       money(o.TransportationCost),
		AdditionalRentalCost:     money(o.AdditionalRentalCost),
		TotalPrice:               moneyPtr(o.TotalPrice),
		InstallmentPlanID:        o.InstallmentPlanID,
		CurrentInstallmentNumber: o.CurrentInstallmentNumber,
		CancellationReason:       o.CancellationReason,
		CreatedAt:                o.CreatedAt,
		UpdatedAt:                o.UpdatedAt,
	}
}

func toPaymentResponse(p *domain.Payment) PaymentResponse {
	resp := PaymentResponse{
		ID:                 p.ID,
		OrderID:            p.OrderID,
		PlanID:             p.PlanID,
		TotalAmount:        money(p.TotalAmount),
		PaymentMethod:      string(p.PaymentMethod),
		PaymentType:        string(p.PaymentType),
		Status:             string(p.Status),
		CurrentInstallment: p.CurrentInstallment,
		TotalInstallments:  p.TotalInstallments,
		Installments:       make([]InstallmentResponse, 0, len(p.Installments)),
		CreatedAt:          p.CreatedAt,
	}
	for i := range p.Installments {
		resp.Installments = append(resp.Installments, toInstallmentResponse(&p.Installments[i]))
	}
	return resp
}

func toInstallmentResponse(inst *domain.Installment) InstallmentResponse {
	return InstallmentResponse{
		ID:                inst.ID,
		PaymentID:         inst.PaymentID,
		InstallmentNumber: inst.InstallmentNumber,
		Amount:            money(inst.Amount),
		Percentage:        money(inst.Percentage),
		Status:            string(inst.Status),
		PaymentMethod:     string(inst.PaymentMethod),
		TransactionID:     inst.TransactionID,
		PaymentSlipURL:    inst.PaymentSlipURL,
		SubmittedAmount:   moneyPtr(inst.SubmittedAmount),
		IsPartial:         inst.IsPartial,
		Notes:             inst.Notes,
		VerifiedBy:        inst.VerifiedBy,
		ConfirmationDate:  inst.ConfirmationDate,
		RejectionReason:   inst.RejectionReason,
	}
}

func toPlanResponse(p *domain.PaymentPlan) PlanResponse {
	resp := PlanResponse{
		ID:                   p.ID,
		Name:                 p.Name,
		Description:          p.Description,
		NumberOfInstallments: p.NumberOfInstallments,
		Percentages:          make([]string, len(p.Percentages)),
		IsActive:             p.IsActive,
	}
	for i, pct := range p.Percentages {
		resp.Percentages[i] = money(pct)
	}
	return resp
}

// principal is only missing when a route was registered outside the authenticated group.
func (h *Handler) principal(w http.ResponseWriter, r *http.Request) (domain.Principal, bool) {
	p, ok := PrincipalFrom(r.Context())
	if !ok {
		http.Error(w, "Unauthenticated", http.StatusUnauthorized)
	}
	return p, ok
}

func (h *Handler) badRequest(w http.ResponseWriter, what string, err error) {
	h.logger.Debug("Malformed request body", zap.String("request", what), zap.Error(err))
	writeJSON(w, h.logger, http.StatusBadRequest, errorResponse{Error: "Invalid request body"})
}

func (h *Handler) CreateOrderHandler(w http.ResponseWriter, r *http.Request) {
	actor, ok := h.principal(w, r)
	if !ok {
		return
	}
	var req CreateOrderRequest
	if err := decodeJSON(w, r, &req); err != nil {
		h.badRequest(w, "CreateOrder", err)
		return
	}
	order, err := h.orders.CreateOrder(r.Context(), actor, reconciliation.CreateOrderInput{
		OrderType:          req.OrderType,
		DesignID:           req.DesignID,
		CustomizationNotes: req.CustomizationNotes,
		EventDate:          req.EventDate,
	})
	if err != nil {
		writeError(w, h.logger, err)
		return
	}
	writeJSON(w, h.logger, http.StatusCreated, toOrderResponse(order))
}

func (h *Handler) ListOrdersHandler(w http.ResponseWriter, r *http.Request) {
	actor, ok := h.principal(w, r)
	if !ok {
		return
	}
	orders, err := h.orders.ListOrders(r.Context(), actor)
	if err != nil {
		writeError(w, h.logger, err)
		return
	}
	resp := make([]OrderResponse, 0, len(orders))
	for i := range orders {
		resp = append(resp, toOrderResponse(&orders[i]))
	}
	writeJSON(w, h.logger, http.StatusOK, resp)
}

func (h *Handler) GetOrderHandler(w http.ResponseWriter, r *http.Request) {
	actor, ok := h.principal(w, r)
	if !ok {
		return
	}
	sum, err := h.orders.GetOrder(r.Context(), actor, chi.URLParam(r, "orderID"))
	if err != nil {
		writeError(w, h.logger, err)
		return
	}
	resp := OrderSummaryResponse{
		Order:     toOrderResponse(&sum.Order),
		Payments:  make([]PaymentResponse, 0, len(sum.Payments)),
		TotalPaid: money(sum.TotalPaid),
		Remaining: money(sum.Remaining),
	}
	for i := range sum.Payments {
		resp.Payments = append(resp.Payments, toPaymentResponse(&sum.Payments[i]))
	}
	writeJSON(w, h.logger, http.StatusOK, resp)
}

func (h *Handler) ConfirmOrderHandler(w http.ResponseWriter, r *http.Request) {
	actor, ok := h.principal(w, r)
	if !ok {
		return
	}
	var req ConfirmOrderRequest
	if err := decodeJSON(w, r, &req); err != nil {
		h.badRequest(w, "ConfirmOrder", err)
		return
	}
	order, err := h.orders.ConfirmOrder(r.Context(), actor, chi.URLParam(r, "orderID"), orderstate.ConfirmInput{
		BasePrice:            req.BasePrice,
		TransportationCost:   req.TransportationCost,
		AdditionalRentalCost: req.AdditionalRentalCost,
		PlanID:               req.PlanID,
	})
	if err != nil {
		writeError(w, h.logger, err)
		return
	}
	writeJSON(w, h.logger, http.StatusOK, toOrderResponse(order))
}

func (h *Handler) CancelOrderHandler(w http.ResponseWriter, r *http.Request) {
	actor, ok := h.principal(w, r)
	if !ok {
		return
	}
	var req ReasonRequest
	if err := decodeJSON(w, r, &req); err != nil {
		h.badRequest(w, "CancelOrder", err)
		return
	}
	order, err := h.orders.CancelOrder(r.Context(), actor, chi.URLParam(r, "orderID"), req.Reason)
	if err != nil {
		writeError(w, h.logger, err)
		return
	}
	writeJSON(w, h.logger, http.StatusOK, toOrderResponse(order))
}

func (h *Handler) CompleteOrderHandler(w http.ResponseWriter, r *http.Request) {
	actor, ok := h.principal(w, r)
	if !ok {
		return
	}
	order, err := h.orders.CompleteOrder(r.Context(), actor, chi.URLParam(r, "orderID"))
	if err != nil {
		writeError(w, h.logger, err)
		return
	}
	writeJSON(w, h.logger, http.StatusOK, toOrderResponse(order))
}

func (h *Handler) InitiatePayHereHandler(w http.ResponseWriter, r *http.Request) {
	actor, ok := h.principal(w, r)
	if !ok {
		return
	}
	var req OpenPaymentRequest
	if r.ContentLength != 0 {
		if err := decodeJSON(w, r, &req); err != nil {
			h.badRequest(w, "InitiatePayHere", err)
			return
		}
	}
	checkout, err := h.orders.InitiatePayHere(r.Context(), actor, chi.URLParam(r, "orderID"), req.PlanID)
	if err != nil {
		writeError(w, h.logger, err)
		return
	}
	writeJSON(w, h.logger, http.StatusOK, checkout)
}

func (h *Handler) OpenBankTransferHandler(w http.ResponseWriter, r *http.Request) {
	actor, ok := h.principal(w, r)
	if !ok {
		return
	}
	var req OpenPaymentRequest
	if r.ContentLength != 0 {
		if err := decodeJSON(w, r, &req); err != nil {
			h.badRequest(w, "OpenBankTransfer", err)
			return
		}
	}
	payment, err := h.orders.OpenBankTransfer(r.Context(), actor, chi.URLParam(r, "orderID"), req.PlanID)
	if err != nil {
		writeError(w, h.logger, err)
		return
	}
	writeJSON(w, h.logger, http.StatusCreated, toPaymentResponse(payment))
}

func (h *Handler) UploadSlipHandler(w http.ResponseWriter, r *http.Request) {
	actor, ok := h.principal(w, r)
	if !ok {
		return
	}
	var req UploadSlipRequest
	if err := decodeJSON(w, r, &req); err != nil {
		h.badRequest(w, "UploadSlip", err)
		return
	}
	inst, mismatch, err := h.orders.UploadSlip(r.Context(), actor, chi.URLParam(r, "paymentID"), ledger.SlipInput{
		SlipURL:   req.SlipURL,
		Amount:    req.Amount,
		IsPartial: req.IsPartial,
		Notes:     req.Notes,
	})
	if err != nil {
		writeError(w, h.logger, err)
		return
	}
	resp := toInstallmentResponse(inst)
	resp.AmountMismatch = mismatch
	writeJSON(w, h.logger, http.StatusOK, resp)
}

func (h *Handler) ConfirmInstallmentHandler(w http.ResponseWriter, r *http.Request) {
	actor, ok := h.principal(w, r)
	if !ok {
		return
	}
	var req ConfirmInstallmentRequest
	if r.ContentLength != 0 {
		if err := decodeJSON(w, r, &req); err != nil {
			h.badRequest(w, "ConfirmInstallment", err)
			return
		}
	}
	inst, err := h.orders.ConfirmInstallment(r.Context(), actor, chi.URLParam(r, "installmentID"), req.Reference)
	if err != nil {
		writeError(w, h.logger, err)
		return
	}
	writeJSON(w, h.logger, http.StatusOK, toInstallmentResponse(inst))
}

func (h *Handler) RejectInstallmentHandler(w http.ResponseWriter, r *http.Request) {
	actor, ok := h.principal(w, r)
	if !ok {
		return
	}
	var req ReasonRequest
	if err := decodeJSON(w, r, &req); err != nil {
		h.badRequest(w, "RejectInstallment", err)
		return
	}
	inst, err := h.orders.RejectInstallment(r.Context(), actor, chi.URLParam(r, "installmentID"), req.Reason)
	if err != nil {
		writeError(w, h.logger, err)
		return
	}
	writeJSON(w, h.logger, http.StatusOK, toInstallmentResponse(inst))
}

// PayHereNotifyHandler receives the gateway's form-encoded server callback. Unverified
// notifications are acknowledged with 200 so the gateway does not keep retrying them; only
// failures on our side answer with an error status.
func (h *Handler) PayHereNotifyHandler(w http.ResponseWriter, r *http.Request) {
	r.Body = http.MaxBytesReader(w, r.Body, maxNotifyBytes)
	if err := r.ParseForm(); err != nil {
		h.logger.Warn("Malformed PayHere notification", zap.Error(err))
		http.Error(w, "Malformed form", http.StatusBadRequest)
		return
	}
	fields := make(map[string]string, len(r.PostForm))
	for key := range r.PostForm {
		fields[key] = r.PostForm.Get(key)
	}

	err := h.orders.HandlePayHereNotification(r.Context(), fields)
	if err != nil && !errors.Is(err, domain.ErrUnverifiedSignature) {
		writeError(w, h.logger, err)
		return
	}
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write([]byte("OK"))
}

const maxNotifyBytes = 64 << 10

func (h *Handler) ListPlansHandler(w http.ResponseWriter, r *http.Request) {
	list, err := h.plans.ListActivePlans(r.Context())
	if err != nil {
		writeError(w, h.logger, err)
		return
	}
	resp := make([]PlanResponse, 0, len(list))
	for i := range list {
		resp = append(resp, toPlanResponse(&list[i]))
	}
	writeJSON(w, h.logger, http.StatusOK, resp)
}

func (h *Handler) GetPlanHandler(w http.ResponseWriter, r *http.Request) {
	plan, err := h.plans.GetPlan(r.Context(), chi.URLParam(r, "planID"))
	if err != nil {
		writeError(w, h.logger, err)
		return
	}
	writeJSON(w, h.logger, http.StatusOK, toPlanResponse(plan))
}

func (h *Handler) CreatePlanHandler(w http.ResponseWriter, r *http.Request) {
	actor, ok := h.principal(w, r)
	if !ok {
		return
	}
	var req CreatePlanRequest
	if err := decodeJSON(w, r, &req); err != nil {
		h.badRequest(w, "CreatePlan", err)
		return
	}
	plan, err := h.plans.CreatePlan(r.Context(), actor, plans.CreatePlanInput{
		Name:        req.Name,
		Description: req.Description,
		Percentages: req.Percentages,
	})
	if err != nil {
		writeError(w, h.logger, err)
		return
	}
	writeJSON(w, h.logger, http.StatusCreated, toPlanResponse(plan))
}

func (h *Handler) UpdatePlanHandler(w http.ResponseWriter, r *http.Request) {
	actor, ok := h.principal(w, r)
	if !ok {
		return
	}
	var req UpdatePlanRequest
	if err := decodeJSON(w, r, &req); err != nil {
		h.badRequest(w, "UpdatePlan", err)
		return
	}
	if req.IsActive == nil {
		writeJSON(w, h.logger, http.StatusBadRequest, errorResponse{Error: "is_active is required"})
		return
	}
	plan, err := h.plans.SetPlanActive(r.Context(), actor, chi.URLParam(r, "planID"), *req.IsActive)
	if err != nil {
		writeError(w, h.logger, err)
		return
	}
	writeJSON(w, h.logger, http.StatusOK, toPlanResponse(plan))
}
