package service

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"math/big"
	"path"
	"regexp"
	"time"

	"github.com/dtroode/taq-server/internal/logger"
	"github.com/dtroode/taq-server/internal/metrics"
	"github.com/dtroode/taq-server/internal/model"
	"github.com/dtroode/taq-server/internal/session"
)

// DemoRecipient is the burn address demo payments are sent to.
const DemoRecipient = "0x0000000000000000000000000000000000000001"

// DemoAmountWei is 0.001 ETH.
var DemoAmountWei = big.NewInt(1_000_000_000_000_000)

var txHashRe = regexp.MustCompile(`^0x[0-9a-fA-F]{64}$`)

// Payments sends the demo payment from a session's embedded wallet.
type Payments struct {
	provider model.IdentityProvider
	archive  model.Storage
	metrics  *metrics.Metrics
	logger   *logger.Logger
	now      func() time.Time
}

// NewPayments creates the payment service. A nil archive disables receipts.
func NewPayments(provider model.IdentityProvider, archive model.Storage, m *metrics.Metrics, logger *logger.Logger) *Payments {
	return &Payments{
		provider: provider,
		archive:  archive,
		metrics:  m,
		logger:   logger,
		now:      time.Now,
	}
}

// SendDemo sends DemoAmountWei to DemoRecipient once. There is no retry; a
// failure is logged and returned.
func (p *Payments) SendDemo(ctx context.Context, s *session.Session) (model.PaymentReceipt, error) {
	st := s.Snapshot()
	switch {
	case st.LoggingOut:
		return model.PaymentReceipt{}, model.ErrLogoutInProgress
	case !st.Authenticated || st.Identity == nil:
		return model.PaymentReceipt{}, model.ErrNotAuthenticated
	case st.Profile == nil:
		return model.PaymentReceipt{}, model.ErrProfileRequired
	}

	identity := *st.Identity
	amount := new(big.Int).Set(DemoAmountWei)

	txHash, err := p.provider.SendPayment(ctx, identity, DemoRecipient, amount)
	if err != nil {
		p.metrics.Payments.WithLabelValues("failed").Inc()
		p.logger.Error("Payment service: transaction failed",
			"session", s.ID(),
			"identity", identity.ID,
			"error", err)
		return model.PaymentReceipt{}, fmt.Errorf("failed to send payment: %w", err)
	}

	receipt := model.PaymentReceipt{
		TxHash:     txHash,
		IdentityID: identity.ID,
		From:       identity.WalletAddress,
		To:         DemoRecipient,
		AmountWei:  amount,
		SentAt:     p.now().UTC(),
	}
	p.metrics.Payments.WithLabelValues("sent").Inc()
	p.logger.Info("Payment service: transaction sent", "identity", identity.ID, "tx_hash", txHash)

	p.store(ctx, receipt)
	return receipt, nil
}

// store archives receipt. Failures are logged only.
func (p *Payments) store(ctx context.Context, receipt model.PaymentReceipt) {
	if p.archive == nil {
		return
	}

	data, err := json.Marshal(receipt)
	if err != nil {
		p.logger.Error("Payment service: failed to encode receipt", "tx_hash", receipt.TxHash, "error", err)
		return
	}

	if err := p.archive.Upload(ctx, receiptKey(receipt.IdentityID, receipt.TxHash), bytes.NewReader(data)); err != nil {
		p.logger.Warn("Payment service: failed to archive receipt", "tx_hash", receipt.TxHash, "error", err)
	}
}

// Receipt returns an archived receipt of the session's identity.
func (p *Payments) Receipt(ctx context.Context, s *session.Session, txHash string) (model.PaymentReceipt, error) {
	if !txHashRe.MatchString(txHash) {
		return model.PaymentReceipt{}, fmt.Errorf("%w: malformed transaction hash", model.ErrValidation)
	}

	st := s.Snapshot()
	if !st.Authenticated || st.Identity == nil {
		return model.PaymentReceipt{}, model.ErrNotAuthenticated
	}
	if p.archive == nil {
		return model.PaymentReceipt{}, model.ErrNotFound
	}

	rc, err := p.archive.Download(ctx, receiptKey(st.Identity.ID, txHash))
	if err != nil {
		if errors.Is(err, model.ErrNotFound) {
			return model.PaymentReceipt{}, model.ErrNotFound
		}
		return model.PaymentReceipt{}, fmt.Errorf("failed to download receipt: %w", err)
	}
	defer rc.Close()

	var receipt model.PaymentReceipt
	if err := json.NewDecoder(rc).Decode(&receipt); err != nil {
		return model.PaymentReceipt{}, fmt.Errorf("failed to decode receipt: %w", err)
	}
	return receipt, nil
}

func receiptKey(identityID, txHash string) string {
	return path.Join("receipts", identityID, txHash+".json")
}
