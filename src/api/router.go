package api

import (
	"errors"
	"net/http"
	"time"

	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
	"github.com/microcosm-cc/bluemonday"

	"github.com/oooz/oooz-bot/src/rules"
	"github.com/oooz/oooz-bot/src/sugestie"
)

func (s *Server) attachRoutes(r *gin.Engine) {
	origins := s.deps.Config.AllowOrigins
	cc := cors.Config{
		AllowMethods:  []string{"GET", "POST", "OPTIONS"},
		AllowHeaders:  []string{"Origin", "Content-Type", "Authorization", headerRequestID},
		ExposeHeaders: []string{"Content-Length", headerRequestID},
		MaxAge:        12 * time.Hour,
	}
	if len(origins) == 0 {
		cc.AllowAllOrigins = true
	} else {
		cc.AllowOrigins = origins
		cc.AllowCredentials = true
	}
	r.Use(cors.New(cc))

	r.GET("/healthz", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"status": "ok", "time": s.deps.Now().UTC()})
	})
	r.GET("/metrics", gin.WrapH(s.deps.Metrics.Handler()))

	h := handlers{deps: s.deps, policy: bluemonday.StrictPolicy()}
	v1 := r.Group("/v1")
	{
		public := v1.Group("", RateLimitMiddleware(s.ipLimit))
		public.GET("/sugestie", h.listProposals)
		public.GET("/sugestie/:id", h.getProposal)
		public.GET("/rules/current", h.currentRules)

		// The subject limiter only sees requests that passed the JWT check.
		secured := v1.Group("",
			RateLimitMiddleware(s.ipLimit),
			JWTMiddleware([]byte(s.deps.Config.JWTSecret)),
			RateLimitMiddleware(s.subjectLimit),
		)
		secured.GET("/warns/:user", h.userWarnings)
		secured.POST("/sugestie/:id/update", h.updateProposal)
	}
}

type handlers struct {
	deps   Deps
	policy *bluemonday.Policy
}

func (h handlers) summary(p *sugestie.Proposal) sugestie.Summary {
	sum := sugestie.Summarize(p, h.deps.Now())
	sum.Text = h.policy.Sanitize(sum.Text)
	return sum
}

// listProposals accepts an optional ?status= matching a phase name.
func (h handlers) listProposals(c *gin.Context) {
	status := c.Query("status")
	now := h.deps.Now()
	out := []sugestie.Summary{}
	for _, p := range h.deps.Proposals.List(c, sugestie.All) {
		if status != "" && p.Phase(now).String() != status {
			continue
		}
		out = append(out, h.summary(p))
	}
	c.JSON(http.StatusOK, gin.H{"sugestie": out})
}

func (h handlers) getProposal(c *gin.Context) {
	p, err := h.deps.Proposals.Get(c, c.Param("id"))
	if err != nil {
		respondErr(c, err)
		return
	}
	c.JSON(http.StatusOK, h.summary(p))
}

func (h handlers) updateProposal(c *gin.Context) {
	id := c.Param("id")
	if err := h.deps.Proposals.Update(c, id); err != nil {
		respondErr(c, err)
		return
	}
	p, err := h.deps.Proposals.Get(c, id)
	if err != nil {
		respondErr(c, err)
		return
	}
	c.JSON(http.StatusOK, h.summary(p))
}

func (h handlers) currentRules(c *gin.Context) {
	v, err := h.deps.Rules.Current(c)
	if err != nil {
		respondErr(c, err)
		return
	}
	proposals := v.Proposals
	if proposals == nil {
		proposals = []string{}
	}
	c.JSON(http.StatusOK, gin.H{
		"time":     v.Time,
		"text":     h.policy.Sanitize(v.Text),
		"sugestie": proposals,
	})
}

type warningJSON struct {
	Time    time.Time  `json:"time"`
	Reason  string     `json:"reason"`
	Expired *time.Time `json:"expired"`
}

func (h handlers) userWarnings(c *gin.Context) {
	user := c.Param("user")
	list := []warningJSON{}
	for _, w := range h.deps.Warnings.Warnings(c, user) {
		list = append(list, warningJSON{Time: w.Time, Reason: w.Reason, Expired: w.Expired})
	}
	c.JSON(http.StatusOK, gin.H{
		"user":     user,
		"active":   h.deps.Warnings.ActiveCount(c, user),
		"warnings": list,
	})
}

func respondErr(c *gin.Context, err error) {
	switch {
	case errors.Is(err, sugestie.ErrNotFound), errors.Is(err, rules.ErrNoRules):
		c.JSON(http.StatusNotFound, gin.H{"err": err.Error()})
	default:
		c.JSON(http.StatusInternalServerError, gin.H{"err": err.Error()})
	}
}
