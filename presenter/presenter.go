package presenter

import (
	"net/http"

	"github.com/ethereum/go-ethereum/common"
	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"

	"github.com/omni/intent-gmp/entity"
	"github.com/omni/intent-gmp/gmp"
	"github.com/omni/intent-gmp/logging"
	gmpmiddleware "github.com/omni/intent-gmp/presenter/http/middleware"
	"github.com/omni/intent-gmp/presenter/http/render"
	"github.com/omni/intent-gmp/relay"
	"github.com/omni/intent-gmp/repository"
)

type Presenter struct {
	logger logging.Logger
	repo   *repository.Repo
	relay  *relay.Relay
	root   chi.Router
}

func NewPresenter(logger logging.Logger, repo *repository.Repo, r *relay.Relay) *Presenter {
	return &Presenter{
		logger: logger,
		repo:   repo,
		relay:  r,
		root:   chi.NewMux(),
	}
}

func (p *Presenter) Serve(addr string) error {
	p.logger.WithField("addr", addr).Info("starting presenter service")
	p.root.Use(middleware.Throttle(5))
	p.root.Use(middleware.RequestID)
	p.root.Use(gmpmiddleware.NewLoggerMiddleware(p.logger))
	p.root.Use(gmpmiddleware.Recoverer)
	p.root.Get("/health", p.GetHealth)
	p.root.Get("/delivery/{intentID:0x[0-9a-fA-F]{64}}", p.GetDelivery)
	return http.ListenAndServe(addr, p.root)
}

type healthResponse struct {
	Status   string                `json:"status"`
	Watchers []relay.WatcherStatus `json:"watchers"`
}

func (p *Presenter) GetHealth(w http.ResponseWriter, r *http.Request) {
	res := healthResponse{
		Status:   "ok",
		Watchers: p.relay.Status(),
	}
	status := http.StatusOK
	if !p.relay.IsHealthy() {
		res.Status = "unhealthy"
		status = http.StatusServiceUnavailable
	}
	render.JSON(w, r, status, res)
}

type deliveryResponse struct {
	IntentID   string                   `json:"intent_id"`
	Deliveries []*entity.DeliveryRecord `json:"deliveries"`
}

func (p *Presenter) GetDelivery(w http.ResponseWriter, r *http.Request) {
	hash := common.HexToHash(chi.URLParam(r, "intentID"))
	intentID := gmp.IntentIDFromBytes(hash.Bytes())

	records, err := p.repo.DeliveryRecords.GetByIntentID(r.Context(), intentID)
	if err != nil {
		render.Error(w, r, err)
		return
	}
	render.JSON(w, r, http.StatusOK, deliveryResponse{
		IntentID:   intentID.Hex(),
		Deliveries: records,
	})
}
