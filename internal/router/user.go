package router

import (
	"errors"
	"net/http"
	"strconv"
	"time"

	"github.com/josidbobo/IDConcordiumDEX/internal/log"
	repository "github.com/josidbobo/IDConcordiumDEX/internal/repository/user"
	"github.com/josidbobo/IDConcordiumDEX/internal/router/middleware"
	"github.com/josidbobo/IDConcordiumDEX/internal/usecase/user"
	"github.com/josidbobo/IDConcordiumDEX/pkg/model"
)

const tokenLifetime = 24 * time.Hour

type UserRouter interface {
	GetUser(w http.ResponseWriter, r *http.Request)
	Deposit(w http.ResponseWriter, r *http.Request)
	RegisterUser(w http.ResponseWriter, r *http.Request)
	LoginUser(w http.ResponseWriter, r *http.Request)
}

type userRouterImpl struct {
	usecase    user.UserUseCase
	tokenMaker *middleware.JWTMaker
	logger     log.Logger
}

func NewUserRouter(usecase user.UserUseCase, tokenMaker *middleware.JWTMaker, logger log.Logger) UserRouter {
	return &userRouterImpl{
		usecase:    usecase,
		tokenMaker: tokenMaker,
		logger:     logger,
	}
}

type UserResponse struct {
	ID         string        `json:"id"`
	Address    string        `json:"address"`
	CreatedAt  time.Time     `json:"created_at"`
	Balance    *model.Amount `json:"balance,omitempty"`
	BalanceCCD string        `json:"balance_ccd,omitempty"`
}

func (ur *userRouterImpl) userID(w http.ResponseWriter, r *http.Request) (int64, bool) {
	claims, ok := middleware.ClaimsFrom(r.Context())
	if !ok || claims.UserID == 0 {
		writeJSONError(w, http.StatusForbidden, errors.New("token does not belong to a user"))
		return 0, false
	}
	return claims.UserID, true
}

func (ur *userRouterImpl) GetUser(w http.ResponseWriter, r *http.Request) {
	id, ok := ur.userID(w, r)
	if !ok {
		return
	}
	profile, err := ur.usecase.GetProfile(r.Context(), id)
	if errors.Is(err, repository.ErrUserNotFound) {
		writeJSONError(w, http.StatusNotFound, err)
		return
	}
	if err != nil {
		ur.logger.Error("load profile", "user", id, "err", err)
		writeJSONError(w, http.StatusInternalServerError, err)
		return
	}

	writeJSON(w, http.StatusOK, UserResponse{
		ID:         strconv.FormatInt(profile.ID, 10),
		Address:    profile.Address.String(),
		CreatedAt:  profile.CreatedAt,
		Balance:    &profile.Balance,
		BalanceCCD: profile.Balance.CCD().String(),
	})
}

func (ur *userRouterImpl) Deposit(w http.ResponseWriter, r *http.Request) {
	type DepositRequest struct {
		Amount model.Amount `json:"amount"`
	}
	id, ok := ur.userID(w, r)
	if !ok {
		return
	}
	req, err := decodeJSON[DepositRequest](w, r)
	if err != nil {
		writeJSONError(w, http.StatusBadRequest, err)
		return
	}
	if err := ur.usecase.Deposit(r.Context(), id, req.Amount); err != nil {
		if errors.Is(err, user.ErrInvalidAmount) {
			writeJSONError(w, http.StatusBadRequest, err)
			return
		}
		ur.logger.Error("deposit", "user", id, "err", err)
		writeJSONError(w, http.StatusInternalServerError, err)
		return
	}
	ur.GetUser(w, r)
}

type credentials struct {
	Address  model.AccountAddress `json:"address"`
	Password string               `json:"password"`
}

func (ur *userRouterImpl) RegisterUser(w http.ResponseWriter, r *http.Request) {
	req, err := decodeJSON[credentials](w, r)
	if err != nil {
		writeJSONError(w, http.StatusBadRequest, err)
		return
	}

	userID, err := ur.usecase.Register(r.Context(), req.Address, req.Password)
	if errors.Is(err, repository.ErrAddressTaken) {
		writeJSONError(w, http.StatusConflict, err)
		return
	}
	if err != nil {
		writeJSONError(w, http.StatusBadRequest, err)
		return
	}

	writeJSON(w, http.StatusOK, UserResponse{
		ID:        strconv.FormatInt(userID, 10),
		Address:   req.Address.String(),
		CreatedAt: time.Now(),
	})
}

func (ur *userRouterImpl) LoginUser(w http.ResponseWriter, r *http.Request) {
	type LoginRes struct {
		Token     string    `json:"token"`
		ID        string    `json:"id"`
		Address   string    `json:"address"`
		ExpiresAt time.Time `json:"expires_at"`
	}
	req, err := decodeJSON[credentials](w, r)
	if err != nil {
		writeJSONError(w, http.StatusBadRequest, err)
		return
	}

	u, err := ur.usecase.Login(r.Context(), req.Address, req.Password)
	if err != nil {
		writeJSONError(w, http.StatusUnauthorized, err)
		return
	}

	newToken, newClaim, err := ur.tokenMaker.CreateToken(u.ID, req.Address, tokenLifetime)
	if err != nil {
		writeJSONError(w, http.StatusInternalServerError, err)
		return
	}
	writeJSON(w, http.StatusOK, LoginRes{
		Token:     newToken,
		ID:        newClaim.ID,
		Address:   req.Address.String(),
		ExpiresAt: newClaim.ExpiresAt.Time,
	})
}
