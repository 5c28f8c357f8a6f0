// Package actions implements the platform's paid actions as settlements:
// support pledges, gift purchases, photo-set unlocks, date applications,
// chat unlocks, top-ups and cashouts. Feature code never touches balances
// directly; every charge goes through the coordinator.
package actions

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/patronlane/tokenledger/internal/domain"
	"github.com/patronlane/tokenledger/internal/ledger"
	"github.com/patronlane/tokenledger/internal/store"
)

// Fees and limits. Date fees match the product's published pricing; cashout
// minimum comes from the payout processor's floor.
const (
	DateApplicationFee int64 = 50
	DateBoostFee       int64 = 25
	ChatUnlockPrice    int64 = 20
	MinCashoutTokens   int64 = 10
)

// Service wires paid actions to the settlement coordinator and the domain
// record store. Treasury is the platform account that issues tokens on top-up
// and absorbs them on cashout, keeping the balance-sum invariant global.
type Service struct {
	coord    *ledger.Coordinator
	records  store.Records
	treasury uuid.UUID
	log      zerolog.Logger
}

func NewService(coord *ledger.Coordinator, records store.Records, treasury uuid.UUID, log zerolog.Logger) *Service {
	return &Service{
		coord:    coord,
		records:  records,
		treasury: treasury,
		log:      log.With().Str("component", "actions").Logger(),
	}
}

// Support charges an arbitrary pledge amount and records it.
func (s *Service) Support(ctx context.Context, correlationID string, supporterID, creatorID uuid.UUID, amount int64, message string) (*domain.Settlement, error) {
	req := ledger.SettleRequest{
		CorrelationID: correlationID,
		PayerID:       supporterID,
		PayeeID:       creatorID,
		Amount:        amount,
		Reason:        domain.ReasonSupport,
	}
	return s.coord.Settle(ctx, req, func(ctx context.Context, paid *domain.LedgerEntry) (any, error) {
		pledge := &domain.SupportPledge{
			SupporterID: supporterID,
			CreatorID:   creatorID,
			Amount:      amount,
			Message:     message,
			PaidEntryID: paid.ID,
		}
		if err := s.records.CreateSupportPledge(ctx, pledge); err != nil {
			return nil, err
		}
		return pledge, nil
	})
}

// BuyGift charges the gift's catalog price to the supporter and records the
// purchase. The price is read server-side; the caller cannot set it.
func (s *Service) BuyGift(ctx context.Context, correlationID string, supporterID, giftID uuid.UUID) (*domain.Settlement, error) {
	gift, err := s.records.Gift(ctx, giftID)
	if err != nil {
		return nil, fmt.Errorf("gift lookup: %w", err)
	}
	req := ledger.SettleRequest{
		CorrelationID: correlationID,
		PayerID:       supporterID,
		PayeeID:       gift.CreatorID,
		Amount:        gift.Price,
		Reason:        domain.ReasonGiftPurchase,
	}
	return s.coord.Settle(ctx, req, func(ctx context.Context, paid *domain.LedgerEntry) (any, error) {
		purchase := &domain.GiftPurchase{
			GiftID:      gift.ID,
			SupporterID: supporterID,
			CreatorID:   gift.CreatorID,
			Price:       gift.Price,
			PaidEntryID: paid.ID,
		}
		if err := s.records.CreateGiftPurchase(ctx, purchase); err != nil {
			return nil, err
		}
		return purchase, nil
	})
}

// UnlockPhotoSet charges the set's price and grants access. A supporter who
// already holds the unlock is rejected before any tokens move.
func (s *Service) UnlockPhotoSet(ctx context.Context, correlationID string, supporterID, photoSetID uuid.UUID) (*domain.Settlement, error) {
	set, err := s.records.PhotoSet(ctx, photoSetID)
	if err != nil {
		return nil, fmt.Errorf("photo set lookup: %w", err)
	}
	unlocked, err := s.records.HasPhotoUnlock(ctx, photoSetID, supporterID)
	if err != nil {
		return nil, err
	}
	if unlocked {
		return nil, domain.ErrAlreadyUnlocked
	}
	req := ledger.SettleRequest{
		CorrelationID: correlationID,
		PayerID:       supporterID,
		PayeeID:       set.CreatorID,
		Amount:        set.Price,
		Reason:        domain.ReasonPhotoUnlock,
	}
	return s.coord.Settle(ctx, req, func(ctx context.Context, paid *domain.LedgerEntry) (any, error) {
		unlock := &domain.PhotoUnlock{
			PhotoSetID:  set.ID,
			SupporterID: supporterID,
			CreatorID:   set.CreatorID,
			Price:       set.Price,
			PaidEntryID: paid.ID,
		}
		if err := s.records.CreatePhotoUnlock(ctx, unlock); err != nil {
			return nil, err
		}
		return unlock, nil
	})
}

// DateApplicationInput carries the supporter's date proposal.
type DateApplicationInput struct {
	ProposedDate string `json:"proposed_date"`
	ProposedTime string `json:"proposed_time"`
	Location     string `json:"location"`
	Plan         string `json:"plan"`
	GiftIdeas    string `json:"gift_ideas"`
	Boosted      bool   `json:"boosted"`
}

// ApplyForDate settles the base fee and creates the application. A boosted
// application settles the boost as a second entry tied to the same record
// under a derived correlation id; if the boost fails, the application stands
// unboosted and the boost error is returned alongside the created record.
func (s *Service) ApplyForDate(ctx context.Context, correlationID string, supporterID, creatorID uuid.UUID, input DateApplicationInput) (*domain.Settlement, error) {
	req := ledger.SettleRequest{
		CorrelationID: correlationID,
		PayerID:       supporterID,
		PayeeID:       creatorID,
		Amount:        DateApplicationFee,
		Reason:        domain.ReasonDateFee,
	}
	settlement, err := s.coord.Settle(ctx, req, func(ctx context.Context, paid *domain.LedgerEntry) (any, error) {
		app := &domain.DateApplication{
			SupporterID:  supporterID,
			CreatorID:    creatorID,
			TokenFee:     DateApplicationFee,
			ProposedDate: input.ProposedDate,
			ProposedTime: input.ProposedTime,
			Location:     input.Location,
			Plan:         input.Plan,
			GiftIdeas:    input.GiftIdeas,
			Status:       "pending",
			PaidEntryID:  paid.ID,
		}
		if err := s.records.CreateDateApplication(ctx, app); err != nil {
			return nil, err
		}
		return app, nil
	})
	if err != nil || !input.Boosted {
		return settlement, err
	}

	var app domain.DateApplication
	if uerr := json.Unmarshal(settlement.Record, &app); uerr != nil {
		return settlement, fmt.Errorf("application record decode: %w", uerr)
	}

	boostCorr := correlationID
	if boostCorr != "" {
		boostCorr += ":boost"
	}
	boostReq := ledger.SettleRequest{
		CorrelationID: boostCorr,
		PayerID:       supporterID,
		PayeeID:       creatorID,
		Amount:        DateBoostFee,
		Reason:        domain.ReasonDateBoost,
	}
	_, berr := s.coord.Settle(ctx, boostReq, func(ctx context.Context, paid *domain.LedgerEntry) (any, error) {
		if err := s.records.MarkApplicationBoosted(ctx, app.ID); err != nil {
			return nil, err
		}
		boosted := app
		boosted.Boosted = true
		boosted.TokenFee = DateApplicationFee + DateBoostFee
		return &boosted, nil
	})
	if berr != nil {
		s.log.Warn().
			Err(berr).
			Str("application_id", app.ID.String()).
			Msg("boost settlement failed, application stands unboosted")
		return settlement, fmt.Errorf("application created, boost failed: %w", berr)
	}

	app.Boosted = true
	app.TokenFee = DateApplicationFee + DateBoostFee
	if raw, merr := json.Marshal(&app); merr == nil {
		settlement.Record = raw
	}
	return settlement, nil
}

// UnlockChat charges the messaging-access price, grants access and ensures
// the supporter-creator thread exists, back-filling its id on the access row.
func (s *Service) UnlockChat(ctx context.Context, correlationID string, supporterID, creatorID uuid.UUID) (*domain.Settlement, error) {
	unlocked, err := s.records.HasChatAccess(ctx, supporterID, creatorID)
	if err != nil {
		return nil, err
	}
	if unlocked {
		return nil, domain.ErrAlreadyUnlocked
	}
	req := ledger.SettleRequest{
		CorrelationID: correlationID,
		PayerID:       supporterID,
		PayeeID:       creatorID,
		Amount:        ChatUnlockPrice,
		Reason:        domain.ReasonChatUnlock,
	}
	return s.coord.Settle(ctx, req, func(ctx context.Context, paid *domain.LedgerEntry) (any, error) {
		access := &domain.ChatAccess{
			SupporterID: supporterID,
			CreatorID:   creatorID,
			PaidEntryID: paid.ID,
		}
		if err := s.records.CreateChatAccess(ctx, access); err != nil {
			return nil, err
		}

		thread, err := s.records.FindThread(ctx, supporterID, creatorID)
		if err != nil {
			if !errors.Is(err, domain.ErrRecordNotFound) {
				return nil, err
			}
			thread = &domain.ChatThread{SupporterID: supporterID, CreatorID: creatorID}
			if err := s.records.CreateThread(ctx, thread); err != nil {
				return nil, err
			}
		}
		if err := s.records.SetAccessThread(ctx, access.ID, thread.ID); err != nil {
			return nil, err
		}
		access.ThreadID = &thread.ID
		return access, nil
	})
}

// TopUp issues tokens from the treasury after an external payment, recording
// the processor transaction for audit.
func (s *Service) TopUp(ctx context.Context, correlationID string, accountID uuid.UUID, tokens int64, method, externalTx string) (*domain.Settlement, error) {
	req := ledger.SettleRequest{
		CorrelationID: correlationID,
		PayerID:       s.treasury,
		PayeeID:       accountID,
		Amount:        tokens,
		Reason:        domain.ReasonTopUp,
	}
	return s.coord.Settle(ctx, req, func(ctx context.Context, paid *domain.LedgerEntry) (any, error) {
		payment := &domain.PendingPayment{
			AccountID:   accountID,
			Direction:   "topup",
			Method:      method,
			ExternalTx:  externalTx,
			Tokens:      tokens,
			PaidEntryID: paid.ID,
		}
		if err := s.records.CreatePendingPayment(ctx, payment); err != nil {
			return nil, err
		}
		return payment, nil
	})
}

// Cashout moves tokens back to the treasury and records a payout request.
func (s *Service) Cashout(ctx context.Context, correlationID string, accountID uuid.UUID, tokens int64, destination string) (*domain.Settlement, error) {
	if tokens < MinCashoutTokens {
		return nil, domain.ErrBelowMinimumCashout
	}
	req := ledger.SettleRequest{
		CorrelationID: correlationID,
		PayerID:       accountID,
		PayeeID:       s.treasury,
		Amount:        tokens,
		Reason:        domain.ReasonCashout,
	}
	return s.coord.Settle(ctx, req, func(ctx context.Context, paid *domain.LedgerEntry) (any, error) {
		payment := &domain.PendingPayment{
			AccountID:   accountID,
			Direction:   "cashout",
			Destination: destination,
			Tokens:      tokens,
			PaidEntryID: paid.ID,
		}
		if err := s.records.CreatePendingPayment(ctx, payment); err != nil {
			return nil, err
		}
		return payment, nil
	})
}

// Gifts lists a creator's gift catalog.
func (s *Service) Gifts(ctx context.Context, creatorID uuid.UUID) ([]domain.Gift, error) {
	return s.records.GiftsByCreator(ctx, creatorID)
}

// DateApplications lists the applications a creator has received.
func (s *Service) DateApplications(ctx context.Context, creatorID uuid.UUID) ([]domain.DateApplication, error) {
	return s.records.DateApplicationsByCreator(ctx, creatorID)
}
