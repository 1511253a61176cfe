package router

import (
	"context"
	"encoding/csv"
	"errors"
	"fmt"
	"net/http"
	"strconv"
	"strings"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus"

	"referral-service/internal/core/cache"
	"referral-service/internal/domain"
	"referral-service/internal/service"
	httpez "referral-service/internal/transport/http/ez"
	resp "referral-service/internal/transport/http/response"
)

var signupTotal = prometheus.NewCounterVec(
	prometheus.CounterOpts{Name: "referral_signups_total", Help: "Count of signup attempts"},
	[]string{"result"},
)

func init() { prometheus.MustRegister(signupTotal) }

func reportKey(number int64) string { return fmt.Sprintf("referral:report:%d", number) }

// MountUserActions 注册推荐体系的全部接口
func MountUserActions(api *gin.RouterGroup, d Deps) {
	ez := httpez.New(api)
	svc := d.Users

	// 业务错误 → 响应码
	mapErr := func(err error) error {
		switch {
		case errors.Is(err, domain.ErrDuplicateEmail),
			errors.Is(err, domain.ErrInvalidReferralCode):
			return httpez.BadRequest(err.Error())
		case errors.Is(err, domain.ErrUserNotFound):
			return httpez.NotFound(err.Error())
		default:
			return httpez.Internal("internal error", err)
		}
	}

	parseNumber := func(c *gin.Context) (int64, error) {
		n, err := strconv.ParseInt(c.Param("userNumber"), 10, 64)
		if err != nil || n <= 0 {
			return 0, httpez.BadRequest("invalid user number")
		}
		return n, nil
	}

	// 被推荐/完善资料后，推荐人的报表缓存要失效
	invalidateReferrerReport := func(c *gin.Context, u *domain.User) {
		if d.Cache == nil || u.ReferredBy == nil {
			return
		}
		if ref, err := svc.GetUserByID(*u.ReferredBy); err == nil && ref != nil {
			d.Cache.Invalidate(c, reportKey(ref.UserNumber))
		}
	}

	// --- POST /users/signup ---
	type signupIn struct {
		Name         string `json:"name"         binding:"required,max=64"`
		Email        string `json:"email"        binding:"required,email"`
		Password     string `json:"password"     binding:"required,min=6"`
		ReferralCode string `json:"referralCode" binding:"omitempty,max=16"`
	}
	httpez.RegisterAction[signupIn, *domain.User](ez, httpez.Action[signupIn, *domain.User]{
		Method: http.MethodPost,
		Path:   "/users/signup",
		Binder: httpez.BindJSON,
		Handler: func(c *gin.Context, in *signupIn) (*domain.User, error) {
			u, err := svc.Signup(service.SignupInput{
				Name:         in.Name,
				Email:        in.Email,
				Password:     in.Password,
				ReferralCode: in.ReferralCode,
			})
			if err != nil {
				signupTotal.WithLabelValues("error").Inc()
				return nil, mapErr(err)
			}
			signupTotal.WithLabelValues("ok").Inc()
			invalidateReferrerReport(c, u)
			return u, nil
		},
	})

	// --- PUT /users/:userNumber/profile ---
	type profileIn struct {
		PhoneNumber string `json:"phoneNumber" binding:"required,max=32"`
		Address     string `json:"address"     binding:"required,max=255"`
	}
	httpez.RegisterAction[profileIn, *domain.User](ez, httpez.Action[profileIn, *domain.User]{
		Method: http.MethodPut,
		Path:   "/users/:userNumber/profile",
		Binder: httpez.BindJSON,
		Handler: func(c *gin.Context, in *profileIn) (*domain.User, error) {
			n, err := parseNumber(c)
			if err != nil {
				return nil, err
			}
			u, err := svc.CompleteProfileByNumber(n, in.PhoneNumber, in.Address)
			if err != nil {
				return nil, mapErr(err)
			}
			invalidateReferrerReport(c, u)
			return u, nil
		},
	})

	// --- GET /users/:userNumber/referrals  成功推荐列表 ---
	httpez.RegisterAction[struct{}, []domain.User](ez, httpez.Action[struct{}, []domain.User]{
		Method: http.MethodGet,
		Path:   "/users/:userNumber/referrals",
		Binder: httpez.BindNone,
		Handler: func(c *gin.Context, _ *struct{}) ([]domain.User, error) {
			n, err := parseNumber(c)
			if err != nil {
				return nil, err
			}
			users, err := svc.GetSuccessfulReferrals(n)
			if err != nil {
				return nil, mapErr(err)
			}
			return users, nil
		},
	})

	// --- GET /users/:userNumber/referral-report  （redis 短缓存）---
	httpez.RegisterAction[struct{}, *service.ReferralReport](ez, httpez.Action[struct{}, *service.ReferralReport]{
		Method: http.MethodGet,
		Path:   "/users/:userNumber/referral-report",
		Binder: httpez.BindNone,
		Handler: func(c *gin.Context, _ *struct{}) (*service.ReferralReport, error) {
			n, err := parseNumber(c)
			if err != nil {
				return nil, err
			}
			if d.Cache == nil {
				rep, err := svc.GetReferralReport(n)
				if err != nil {
					return nil, mapErr(err)
				}
				return rep, nil
			}
			rep, err := cache.GetOrLoadJSON[service.ReferralReport](
				d.Cache, c, reportKey(n), d.ReportTTL,
				func(context.Context) (*service.ReferralReport, error) { return svc.GetReferralReport(n) },
			)
			if err != nil {
				return nil, mapErr(err)
			}
			return rep, nil
		},
	})

	// --- GET /users/:userNumber  单个用户 ---
	httpez.RegisterAction[struct{}, *domain.User](ez, httpez.Action[struct{}, *domain.User]{
		Method: http.MethodGet,
		Path:   "/users/:userNumber",
		Binder: httpez.BindNone,
		Handler: func(c *gin.Context, _ *struct{}) (*domain.User, error) {
			n, err := parseNumber(c)
			if err != nil {
				return nil, err
			}
			u, err := svc.GetUserByNumber(n)
			if err != nil {
				return nil, mapErr(err)
			}
			return u, nil
		},
	})

	// --- GET /users  全量用户 ---
	httpez.RegisterAction[struct{}, []domain.User](ez, httpez.Action[struct{}, []domain.User]{
		Method: http.MethodGet,
		Path:   "/users",
		Binder: httpez.BindNone,
		Handler: func(c *gin.Context, _ *struct{}) ([]domain.User, error) {
			users, err := svc.GetAllUsers()
			if err != nil {
				return nil, mapErr(err)
			}
			return users, nil
		},
	})

	// --- GET /reports/referral-report.csv  全量导出 ---
	ez.Raw(http.MethodGet, "/reports/referral-report.csv", func(c *gin.Context) {
		users, err := svc.GetAllUsers()
		if err != nil {
			c.JSON(http.StatusOK, resp.Error(resp.CodeServerError, err.Error()))
			return
		}
		c.Header("Content-Disposition", `attachment; filename=referral_report.csv`)
		c.Header("Content-Type", "text/csv; charset=utf-8")
		w := csv.NewWriter(c.Writer)
		_ = w.Write([]string{"UserNumber", "Name", "Email", "ReferralCode", "ReferredBy", "ProfileCompleted", "Referrals"})
		for _, u := range users {
			referredBy := ""
			if u.ReferredBy != nil {
				referredBy = *u.ReferredBy
			}
			_ = w.Write([]string{
				strconv.FormatInt(u.UserNumber, 10),
				u.Name,
				u.Email,
				u.ReferralCode,
				referredBy,
				strconv.FormatBool(u.ProfileCompleted),
				strings.Join(u.Referrals, "|"),
			})
		}
		w.Flush()
	})
}
