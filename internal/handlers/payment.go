package handlers

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"path"
	"strings"

	"laikostar/internal/model"
	"laikostar/internal/receipts"
	"laikostar/internal/service"

	"github.com/go-chi/chi"
	"github.com/shopspring/decimal"
)

func (s *Server) UploadTrainingBonus(w http.ResponseWriter, r *http.Request) {
	s.uploadPayment(w, r, model.KindTrainingBonus)
}

func (s *Server) UploadReferralPayment(w http.ResponseWriter, r *http.Request) {
	s.uploadPayment(w, r, model.KindReferralPlan)
}

func (s *Server) uploadPayment(w http.ResponseWriter, r *http.Request, kind model.PaymentKind) {
	username, ok := currentUser(w, r)
	if !ok {
		return
	}
	if !parseUpload(w, r) {
		return
	}
	req, err := paymentForm(r, kind)
	if err != nil {
		writeError(w, r, err)
		return
	}
	if req.ReceiptPath, ok = s.saveUpload(w, r, string(kind), "image", true); !ok {
		return
	}

	p, err := s.Ledger.SubmitPayment(r.Context(), username, req)
	if err != nil {
		s.discardUpload(r.Context(), req.ReceiptPath)
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, p)
}

// paymentForm reads the text fields of a receipt upload and rejects obvious
// gaps before the file is stored. Referral plan terms come from the plans
// catalogue, so only the plan name is taken from the form.
func paymentForm(r *http.Request, kind model.PaymentKind) (service.PaymentUpload, error) {
	req := service.PaymentUpload{
		Kind:          kind,
		TransactionID: strings.TrimSpace(r.FormValue("transactionId")),
		Gateway:       strings.TrimSpace(r.FormValue("gateway")),
	}
	if req.TransactionID == "" || req.Gateway == "" {
		return req, fmt.Errorf("%w: transactionId and gateway are required", service.ErrValidation)
	}
	var err error
	if req.TransactionAmount, err = decimalField(r, "transactionAmount"); err != nil {
		return req, err
	}
	if !req.TransactionAmount.IsPositive() {
		return req, fmt.Errorf("%w: transaction amount must be positive", service.ErrValidation)
	}
	if kind == model.KindReferralPlan {
		req.PlanName = strings.TrimSpace(r.FormValue("planName"))
		if req.PlanName == "" {
			return req, fmt.Errorf("%w: plan name is required", service.ErrValidation)
		}
	}
	return req, nil
}

func (s *Server) GetTrainingBonus(w http.ResponseWriter, r *http.Request) {
	s.listPayments(w, r, model.KindTrainingBonus)
}

func (s *Server) GetReferralPayments(w http.ResponseWriter, r *http.Request) {
	s.listPayments(w, r, model.KindReferralPlan)
}

func (s *Server) listPayments(w http.ResponseWriter, r *http.Request, kind model.PaymentKind) {
	username, ok := currentUser(w, r)
	if !ok {
		return
	}
	payments, err := s.Ledger.Payments(r.Context(), username, kind)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, payments)
}

type approvePaymentRequest struct {
	Points decimal.Decimal `json:"points"`
}

func (s *Server) ApprovePayment(w http.ResponseWriter, r *http.Request) {
	id, ok := idParam(w, r, "id")
	if !ok {
		return
	}
	var req approvePaymentRequest
	if r.ContentLength != 0 && !s.decode(w, r, &req) {
		return
	}
	approval, err := s.Ledger.ApprovePayment(r.Context(), id, req.Points)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, approval)
}

type rejectPaymentRequest struct {
	Feedback string `json:"feedback" validate:"required"`
}

func (s *Server) RejectPayment(w http.ResponseWriter, r *http.Request) {
	id, ok := idParam(w, r, "id")
	if !ok {
		return
	}
	var req rejectPaymentRequest
	if !s.decode(w, r, &req) {
		return
	}
	p, err := s.Ledger.RejectPayment(r.Context(), id, req.Feedback)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, p)
}

// GetReceipt sends the admin to a stored receipt: a presigned link for object
// storage, the file itself for local storage.
func (s *Server) GetReceipt(w http.ResponseWriter, r *http.Request) {
	key := path.Join(chi.URLParam(r, "folder"), chi.URLParam(r, "name"))

	switch store := s.Receipts.(type) {
	case interface {
		URL(ctx context.Context, key string) (string, error)
	}:
		link, err := store.URL(r.Context(), key)
		if err != nil {
			writeError(w, r, err)
			return
		}
		http.Redirect(w, r, link, http.StatusTemporaryRedirect)
	case *receipts.Local:
		p, err := store.Path(key)
		if errors.Is(err, receipts.ErrInvalidKey) {
			writeMessage(w, http.StatusBadRequest, err.Error())
			return
		}
		http.ServeFile(w, r, p)
	default:
		writeMessage(w, http.StatusNotFound, "Receipt storage does not serve files")
	}
}
