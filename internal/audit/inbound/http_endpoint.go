package inbound

import (
	"strconv"

	"github.com/samber/lo"
	"github.com/shandysiswandi/stepguard/internal/audit/entity"
	"github.com/shandysiswandi/stepguard/internal/audit/usecase"
	"github.com/shandysiswandi/stepguard/internal/pkg/router"
)

type HTTPEndpoint struct {
	uc uc
}

func (h *HTTPEndpoint) ListEvents(r *router.Request) (any, error) {
	limit, err := r.GetQueryInt32("limit")
	if err != nil {
		return nil, err
	}

	offset, err := r.GetQueryInt32("offset")
	if err != nil {
		return nil, err
	}

	out, err := h.uc.ListEvents(r.Context(), usecase.ListEventsInput{
		Address: r.GetQuery("address"),
		Type:    r.GetQuery("type"),
		Limit:   limit,
		Offset:  offset,
	})
	if err != nil {
		return nil, err
	}

	return ListEventsResponse{
		Events: lo.Map(out.Events, func(e entity.Event, _ int) EventResponse {
			return EventResponse{
				// snowflake ids overflow JavaScript numbers
				ID:            strconv.FormatInt(e.ID, 10),
				Type:          e.Type,
				Address:       e.Address,
				SessionID:     e.SessionID,
				Detail:        e.Detail,
				CorrelationID: e.CorrelationID,
				OccurredAt:    e.OccurredAt,
				RecordedAt:    e.RecordedAt,
			}
		}),
		total:  out.Total,
		limit:  out.Limit,
		offset: out.Offset,
	}, nil
}
