package inbound

import "github.com/shandysiswandi/stepguard/internal/pkg/router"

func RegisterHTTPEndpoint(r *router.Router, uc uc) {
	end := &HTTPEndpoint{uc: uc}

	// Audit (need authenticated & authorization)
	r.GET("/api/v1/audit/events", end.ListEvents)
}
