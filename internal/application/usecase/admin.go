package usecase

import (
	"context"
	"strconv"

	"github.com/waste3d/courseplatform-api/internal/domain"
	"github.com/waste3d/courseplatform-api/internal/infrastructure/payment"

	"github.com/google/uuid"
	"go.uber.org/zap"
)

type AdminUseCase struct {
	users      UserStore
	settings   SettingStore
	ledger     *PurchaseUseCase
	reconciler *ReconcileUseCase
	log        *zap.Logger
}

func NewAdminUseCase(us UserStore, ss SettingStore, ledger *PurchaseUseCase, rec *ReconcileUseCase, log *zap.Logger) *AdminUseCase {
	return &AdminUseCase{users: us, settings: ss, ledger: ledger, reconciler: rec, log: log}
}

func (uc *AdminUseCase) SetRegistrationEnabled(ctx context.Context, enabled bool) error {
	if err := uc.settings.Set(ctx, domain.SettingRegistrationEnabled, strconv.FormatBool(enabled)); err != nil {
		return err
	}
	uc.log.Info("registration toggled", zap.Bool("enabled", enabled))
	return nil
}

func (uc *AdminUseCase) SetUserActive(ctx context.Context, id uuid.UUID, active bool) error {
	if err := uc.users.SetActive(ctx, id, active); err != nil {
		return err
	}
	uc.log.Info("user activity changed", zap.String("user_id", id.String()), zap.Bool("active", active))
	return nil
}

func (uc *AdminUseCase) GrantRole(ctx context.Context, email string, role domain.Role) (*domain.User, error) {
	if !role.Valid() {
		return nil, domain.Invalid("unknown role %q", role)
	}
	user, err := uc.users.GetByEmail(ctx, email)
	if err != nil {
		return nil, err
	}
	if err := uc.users.SetRole(ctx, user.ID, role); err != nil {
		return nil, err
	}
	user.Role = role
	uc.log.Info("role granted", zap.String("user_id", user.ID.String()), zap.String("role", string(role)))
	return user, nil
}

// ConfirmManualPurchase settles an offline payment through the same transition the
// payment networks use.
func (uc *AdminUseCase) ConfirmManualPurchase(ctx context.Context, ref string) (*domain.Purchase, error) {
	purchase, err := uc.ledger.byRef(ctx, ref)
	if err != nil {
		return nil, err
	}
	if purchase.Provider != domain.ProviderManual {
		return nil, domain.Invalid("only manual purchases can be confirmed, got %s", purchase.Provider)
	}
	return uc.reconciler.Apply(ctx, payment.NewManual(), ref, payment.StatusSucceeded)
}
