package handlers

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"

	"github.com/philippzhuravlev/event-aggregator/internal/apperrors"
	"github.com/philippzhuravlev/event-aggregator/internal/facebook"
	"github.com/philippzhuravlev/event-aggregator/internal/handlers/render"
	"github.com/philippzhuravlev/event-aggregator/internal/logger"
	"github.com/philippzhuravlev/event-aggregator/internal/models"
	"github.com/philippzhuravlev/event-aggregator/internal/repository"
)

const stateTTL = 15 * time.Minute

type oauthGraphClient interface {
	GetMe(ctx context.Context, userToken string) (facebook.User, error)
	ListPages(ctx context.Context, userToken string) ([]facebook.Page, error)
}

type oauthPageRepo interface {
	CreatePage(ctx context.Context, arg repository.CreatePageParams) (models.Page, error)
}

type oauthSecretStore interface {
	Put(ctx context.Context, pageID string, token string, ttl time.Duration) (uuid.UUID, error)
}

// OAuthHandler finishes the facebook login flow: it issues a signed state
// parameter, then on callback verifies it, resolves the user's pages and
// registers each page with its stored token. This is the only path that
// (re)activates a page.
type OAuthHandler struct {
	stateKey      []byte
	tokenValidity time.Duration

	fb     oauthGraphClient
	pages  oauthPageRepo
	store  oauthSecretStore
	logger logger.Logger
}

func NewOAuth(stateKey string, tokenValidity time.Duration, fb oauthGraphClient, pages oauthPageRepo, store oauthSecretStore, l logger.Logger) *OAuthHandler {
	return &OAuthHandler{
		stateKey:      []byte(stateKey),
		tokenValidity: tokenValidity,
		fb:            fb,
		pages:         pages,
		store:         store,
		logger:        l,
	}
}

// issueState signs a short-lived JWT the frontend round-trips through the
// facebook dialog, so the callback only accepts flows we started.
func (h *OAuthHandler) issueState() (string, error) {
	now := time.Now()
	claims := jwt.RegisteredClaims{
		ID:        uuid.NewString(),
		IssuedAt:  jwt.NewNumericDate(now),
		ExpiresAt: jwt.NewNumericDate(now.Add(stateTTL)),
	}

	return jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(h.stateKey)
}

func (h *OAuthHandler) verifyState(state string) error {
	_, err := jwt.Parse(state, func(t *jwt.Token) (any, error) {
		return h.stateKey, nil
	}, jwt.WithValidMethods([]string{"HS256"}), jwt.WithExpirationRequired())
	if err != nil {
		return fmt.Errorf("%w: %w", apperrors.ErrStateInvalid, err)
	}

	return nil
}

func (h *OAuthHandler) handleLoginState() http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		state, err := h.issueState()
		if err != nil {
			h.logger.Error("Failed to issue oauth state", "error", err)
			render.Failure(w, "Internal server error", http.StatusInternalServerError)
			return
		}

		render.Success(w, map[string]string{"state": state})
	})
}

type callbackRequest struct {
	UserToken string `json:"user_token" validate:"required"`
	State     string `json:"state" validate:"required"`
}

type callbackResponse struct {
	ClientID   string   `json:"client_id"`
	ClientName string   `json:"client_name"`
	PageIDs    []string `json:"page_ids"`
}

func (h *OAuthHandler) handleCallback() http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		req, err := render.BindAndValidate[callbackRequest](w, r)
		if err != nil {
			return
		}

		if err := h.verifyState(req.State); err != nil {
			h.logger.Warn("Rejected oauth callback with bad state", "error", err)
			render.Failure(w, "Invalid state parameter", http.StatusUnauthorized)
			return
		}

		user, err := h.fb.GetMe(r.Context(), req.UserToken)
		if err != nil {
			h.logger.Error("Failed to verify facebook user", "error", err)
			render.Failure(w, "Could not verify facebook user", http.StatusBadGateway)
			return
		}

		fbPages, err := h.fb.ListPages(r.Context(), req.UserToken)
		if err != nil {
			h.logger.Error("Failed to list facebook pages", "user_id", user.ID, "error", err)
			render.Failure(w, "Could not list facebook pages", http.StatusBadGateway)
			return
		}

		res := callbackResponse{ClientID: user.ID, ClientName: user.Name, PageIDs: []string{}}
		for _, page := range fbPages {
			// Page tokens from /me/accounts are long-lived; record the
			// standard validity window and refresh from there
			ref, err := h.store.Put(r.Context(), page.ID, page.AccessToken, h.tokenValidity)
			if err != nil {
				h.logger.Error("Failed to store page token", "page_id", page.ID, "error", err)
				continue
			}

			expiresAt := time.Now().Add(h.tokenValidity)
			_, err = h.pages.CreatePage(r.Context(), repository.CreatePageParams{
				PageID:         page.ID,
				PageName:       page.Name,
				TokenExpiresAt: &expiresAt,
				TokenRef:       &ref,
			})
			if err != nil {
				h.logger.Error("Failed to register page", "page_id", page.ID, "error", err)
				continue
			}

			res.PageIDs = append(res.PageIDs, page.ID)
			h.logger.Info("Registered facebook page", "page_id", page.ID, "page_name", page.Name)
		}

		render.Success(w, res)
	})
}
