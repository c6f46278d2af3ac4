package sipgw

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"

	"github.com/gbt28181/sipgw/store"
)

var (
	requestsIn = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "sipgw_requests_in_total",
		Help: "Inbound SIP requests by method.",
	}, []string{"method"})

	responsesIn = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "sipgw_responses_in_total",
		Help: "Inbound SIP responses by CSeq method.",
	}, []string{"method"})

	messagesOut = promauto.NewCounter(prometheus.CounterOpts{
		Name: "sipgw_messages_out_total",
		Help: "SIP messages put on the wire.",
	})

	parseErrors = promauto.NewCounter(prometheus.CounterOpts{
		Name: "sipgw_parse_errors_total",
		Help: "Inbound messages dropped as unparsable.",
	})
)

// RegisterStoreMetrics exposes the store's device and stream counts as
// gauges. Call once per process.
func RegisterStoreMetrics(st store.Engine) {
	prometheus.MustRegister(
		prometheus.NewGaugeFunc(prometheus.GaugeOpts{
			Name: "sipgw_registered_devices",
			Help: "Devices currently registered.",
		}, func() float64 {
			devices, _ := st.Counts()
			return float64(devices)
		}),
		prometheus.NewGaugeFunc(prometheus.GaugeOpts{
			Name: "sipgw_active_streams",
			Help: "Streams currently active.",
		}, func() float64 {
			_, streams := st.Counts()
			return float64(streams)
		}),
	)
}
