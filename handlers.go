package main

import (
	"encoding/json"
	"io"
	"net/http"
	"net/url"

	"github.com/rs/zerolog/log"

	"github.com/weixiao/campus-bridge/internal/audit"
	"github.com/weixiao/campus-bridge/internal/binding"
	"github.com/weixiao/campus-bridge/internal/cache"
	"github.com/weixiao/campus-bridge/internal/campus"
	"github.com/weixiao/campus-bridge/internal/capability"
	"github.com/weixiao/campus-bridge/internal/credential"
	"github.com/weixiao/campus-bridge/internal/events"
)

// handleWebhook answers the platform's endpoint verification challenge on
// GET and relays event deliveries on POST. Signature verification happens
// in the gate middleware before this handler runs.
func handleWebhook(responder events.Responder) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		defer drainRequestBody(r)

		if r.Method == http.MethodGet {
			// endpoint verification: echo the challenge verbatim
			w.Header().Set("Content-Type", "text/plain; charset=utf-8")
			w.Write([]byte(r.URL.Query().Get("echostr")))
			return
		}

		body, err := io.ReadAll(r.Body)
		if err != nil {
			log.Info().Msgf("failed to read event delivery: %v", err)
			requestError(w, http.StatusBadRequest)
			return
		}

		reply, err := responder.Respond(r.Context(), body)
		if err != nil {
			log.Info().Msgf("event delivery response failed: %v", err)
			requestError(w, http.StatusBadGateway)
			return
		}

		w.Header().Set("Content-Type", "text/xml; charset=utf-8")
		if _, err := w.Write(reply); err != nil {
			log.Info().Msgf("failed to write reply: %v", err)
		}
	})
}

// pageContent is the static text for a served page. The strings are
// user-facing and rendered by the client as-is.
type pageContent struct {
	Title               string `json:"title"`
	Description         string `json:"desc,omitempty"`
	UsernameLabel       string `json:"usernameLabel,omitempty"`
	UsernamePlaceholder string `json:"usernamePlaceholder,omitempty"`
	PasswordPlaceholder string `json:"passwordPlaceholder,omitempty"`
}

var (
	scorePageContent = pageContent{
		Title:               "微信查成绩",
		Description:         "请先绑定教务系统",
		UsernameLabel:       "学号",
		UsernamePlaceholder: "请输入你的学号",
		PasswordPlaceholder: "默认是身份证号码",
	}

	libraryPageContent = pageContent{
		Title:               "图书馆查询",
		Description:         "请先绑定借书卡",
		UsernameLabel:       "卡号",
		UsernamePlaceholder: "请输入你的借书卡号",
		PasswordPlaceholder: "默认是卡号后六位",
	}

	reportPageContent = pageContent{
		Title: "学生成绩单",
	}
)

// pagePayload is the JSON body for a page request: static content, the
// JS-API configuration signed for the exact page URL, and the analytics
// identifier. The report is attached on the report page only.
type pagePayload struct {
	pageContent

	JSAPI          credential.JSAPIConfig `json:"jsapi"`
	BaiduAnalytics string                 `json:"baiduAnalytics,omitempty"`
	Report         *campus.ScoreReport    `json:"report,omitempty"`
}

// bindResult carries the collaborator's user-facing status message. An
// "errmsg" is returned for rejected input as well, with status 200: the
// page renders it inline rather than treating it as a failure.
type bindResult struct {
	ErrMsg string `json:"errmsg"`
}

// User-facing rejections for malformed binding input. Unknown identities
// receive the same message so the endpoint doesn't reveal which openids
// are registered.
const (
	malformedStudentInput = "学号或者密码格式不合法"
	malformedLibraryInput = "卡号或者密码格式不合法"
)

// pageServer bundles the dependencies shared by the page handlers.
type pageServer struct {
	signer       *credential.Signer
	bindings     binding.Store
	capabilities capability.Set
	baiduID      string
}

// handlePage serves the signed page payload for a bound identity. Unknown
// identities receive 404, exactly as if the page did not exist.
func (s pageServer) handlePage(page string, content pageContent) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		defer drainRequestBody(r)

		openID := r.PathValue("openid")
		audit.Log(r.Context()).OpenID = openID

		if !s.requireBound(w, r, openID) {
			return
		}

		payload := pagePayload{
			pageContent:    content,
			BaiduAnalytics: s.baiduID,
		}

		if !s.signPage(w, r, page, &payload) {
			return
		}

		writeJSON(w, http.StatusOK, payload)
	})
}

// handleBind accepts a credential pair for an identity and forwards it to
// the collaborator that performs the simulated login. Missing fields and
// unknown identities are answered without a collaborator call.
func (s pageServer) handleBind(bind campus.BindFn, idField, pwdField, rejection string) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		defer drainRequestBody(r)

		openID := r.PathValue("openid")
		audit.Log(r.Context()).OpenID = openID

		if err := r.ParseForm(); err != nil {
			requestError(w, http.StatusBadRequest)
			return
		}

		id := r.PostFormValue(idField)
		pwd := r.PostFormValue(pwdField)

		eligible := false
		if id != "" && pwd != "" {
			bound, err := s.bindings.IsBound(r.Context(), openID)
			if err != nil {
				log.Info().Msgf("binding lookup failed: %v", err)
				requestError(w, http.StatusInternalServerError)
				return
			}
			eligible = bound
		}

		if !eligible {
			writeJSON(w, http.StatusOK, bindResult{ErrMsg: rejection})
			return
		}

		msg, err := bind(r.Context(), openID, id, pwd)
		if err != nil {
			log.Info().Msgf("collaborator bind failed: %v", err)
			requestError(w, http.StatusBadGateway)
			return
		}

		writeJSON(w, http.StatusOK, bindResult{ErrMsg: msg})
	})
}

// handleScoreReport serves the pre-fetched score report for a bound
// identity. A missing report is recoverable (the user's next query
// repopulates the cache), so it is answered 404 rather than failing.
func (s pageServer) handleScoreReport(reports cache.Cache[campus.ScoreReport]) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		defer drainRequestBody(r)

		openID := r.PathValue("openid")
		audit.Log(r.Context()).OpenID = openID

		if !s.requireBound(w, r, openID) {
			return
		}

		report, found, err := reports.Get(r.Context(), campus.ScoreReportKeyPrefix+openID)
		if err != nil {
			log.Info().Msgf("score report lookup failed: %v", err)
			requestError(w, http.StatusInternalServerError)
			return
		}
		if !found {
			requestError(w, http.StatusNotFound)
			return
		}

		payload := pagePayload{
			pageContent:    reportPageContent,
			BaiduAnalytics: s.baiduID,
			Report:         &report,
		}

		if !s.signPage(w, r, capability.PageScoreReport, &payload) {
			return
		}

		writeJSON(w, http.StatusOK, payload)
	})
}

func (s pageServer) requireBound(w http.ResponseWriter, r *http.Request, openID string) bool {
	bound, err := s.bindings.IsBound(r.Context(), openID)
	if err != nil {
		log.Info().Msgf("binding lookup failed: %v", err)
		requestError(w, http.StatusInternalServerError)
		return false
	}

	if !bound {
		requestError(w, http.StatusNotFound)
		return false
	}

	return true
}

func (s pageServer) signPage(w http.ResponseWriter, r *http.Request, page string, payload *pagePayload) bool {
	jsapi, err := s.signer.Sign(r.Context(), requestURL(r), s.capabilities.For(page))
	if err != nil {
		log.Info().Msgf("page signing failed: %v", err)
		requestError(w, http.StatusInternalServerError)
		return false
	}

	payload.JSAPI = jsapi
	return true
}

// handleRefresh forces a credential refresh. The route it's mounted on is
// configuration-supplied and acts as the endpoint's shared secret.
func handleRefresh(refresher *credential.Refresher) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		defer drainRequestBody(r)

		if _, err := refresher.Refresh(r.Context()); err != nil {
			log.Info().Msgf("forced credential refresh failed: %v", err)
			requestError(w, http.StatusBadGateway)
			return
		}

		w.WriteHeader(http.StatusNoContent)
	})
}

func handleHealthCheck() http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		defer drainRequestBody(r)

		w.Header().Set("Content-Type", "text/plain")
		w.WriteHeader(http.StatusOK)
		w.Write([]byte("OK"))
	})
}

// requestURL reconstructs the caller-visible URL for JS-API signing. The
// client runtime validates the signature against the URL it sees, so the
// scheme must come from the fronting proxy's header when one is set.
// Fragments are never transmitted and so never part of the signature.
func requestURL(r *http.Request) string {
	scheme := r.Header.Get("X-Forwarded-Proto")
	if scheme == "" {
		if r.TLS != nil {
			scheme = "https"
		} else {
			scheme = "http"
		}
	}

	u := url.URL{
		Scheme:   scheme,
		Host:     r.Host,
		Path:     r.URL.Path,
		RawQuery: r.URL.RawQuery,
	}

	return u.String()
}

func maxRequestSize(limit int64) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.MaxBytesHandler(next, limit)
	}
}

func writeJSON(w http.ResponseWriter, statusCode int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(statusCode)

	if err := json.NewEncoder(w).Encode(payload); err != nil {
		// status is already written; the failure can only be logged
		log.Info().Msgf("failed to write JSON response: %v", err)
	}
}

func requestError(w http.ResponseWriter, statusCode int) {
	http.Error(w, http.StatusText(statusCode), statusCode)
}

// drainRequestBody consumes any unread request body so HTTP/1 connections
// can be reused. Reading stops after 64 KB: a client still sending past
// that is broken or malicious and its connection is closed instead.
func drainRequestBody(r *http.Request) {
	if r.Body != nil {
		io.CopyN(io.Discard, r.Body, 64<<10)
	}
}
