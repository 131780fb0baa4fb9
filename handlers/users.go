package handlers

import (
	"net/http"

	"solestore-backend/internal/models"
	"solestore-backend/internal/users"
	"solestore-backend/pkg/ctxmanage"
	"solestore-backend/pkg/logkey"
	"solestore-backend/pkg/respond"

	"github.com/gin-gonic/gin"
)

type sessionResponse struct {
	User  models.User `json:"user"`
	Token string      `json:"token"`
}

func (h *Handler) Register(c *gin.Context) {
	var in users.RegisterInput
	if err := bindJSON(c, &in); err != nil {
		fail(c, err, "invalid register body")
		return
	}
	u, token, err := h.svc.Users.Register(c.Request.Context(), in)
	if err != nil {
		fail(c, err, "registration failed")
		return
	}
	ctxmanage.Logger(c).WithField(logkey.UserID, u.ID.Hex()).Info("user registered")
	respond.OK(c, http.StatusCreated, sessionResponse{User: u, Token: token}, "registration successful")
}

func (h *Handler) Login(c *gin.Context) {
	var in users.LoginInput
	if err := bindJSON(c, &in); err != nil {
		fail(c, err, "invalid login body")
		return
	}
	u, token, err := h.svc.Users.Login(c.Request.Context(), in)
	if err != nil {
		fail(c, err, "login failed")
		return
	}
	respond.OK(c, http.StatusOK, sessionResponse{User: u, Token: token}, "login successful")
}

func (h *Handler) GetProfile(c *gin.Context) {
	caller, err := callerFrom(c)
	if err != nil {
		fail(c, err, "no caller")
		return
	}
	u, err := h.svc.Users.Profile(c.Request.Context(), caller)
	if err != nil {
		fail(c, err, "profile lookup failed")
		return
	}
	respond.OK(c, http.StatusOK, u, "")
}

func (h *Handler) UpdateProfile(c *gin.Context) {
	caller, err := callerFrom(c)
	if err != nil {
		fail(c, err, "no caller")
		return
	}
	var in users.ProfileUpdate
	if err := bindJSON(c, &in); err != nil {
		fail(c, err, "invalid profile body")
		return
	}
	u, err := h.svc.Users.UpdateProfile(c.Request.Context(), caller, in)
	if err != nil {
		fail(c, err, "profile update failed")
		return
	}
	respond.OK(c, http.StatusOK, u, "profile updated")
}

func (h *Handler) ListUsers(c *gin.Context) {
	q, err := bindPage(c)
	if err != nil {
		fail(c, err, "invalid query")
		return
	}
	q = q.withDefaults(20)
	list, total, err := h.svc.Users.List(c.Request.Context(), q.Page, q.Limit)
	if err != nil {
		fail(c, err, "listing users failed")
		return
	}
	respond.OK(c, http.StatusOK, paged{Items: list, Total: total, Page: q.Page, Limit: q.Limit}, "")
}
