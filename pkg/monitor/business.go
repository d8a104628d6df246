package monitor

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// BusinessMetrics 定义业务监控指标
type BusinessMetrics struct {
	UserRegisteredTotal prometheus.Counter
	LoginTotal          *prometheus.CounterVec
	AccountLockedTotal  prometheus.Counter
	CodeRequestedTotal  *prometheus.CounterVec
	TransferStageTotal  *prometheus.CounterVec
	TransferAmountTotal *prometheus.CounterVec
	ManageRecords       *prometheus.CounterVec
	ChainCallErrors     *prometheus.CounterVec
	ReconcileDuration   *prometheus.HistogramVec
}

// Global Metrics Instance
// promauto 在包加载时注册到默认 Registry
var Business = newBusinessMetrics()

func newBusinessMetrics() *BusinessMetrics {
	return &BusinessMetrics{
		UserRegisteredTotal: promauto.NewCounter(prometheus.CounterOpts{
			Name: "chainless_user_registered_total",
			Help: "The total number of registered users",
		}),
		LoginTotal: promauto.NewCounterVec(prometheus.CounterOpts{
			Name: "chainless_login_total",
			Help: "Login attempts by method and result",
		}, []string{"method", "result"}),
		AccountLockedTotal: promauto.NewCounter(prometheus.CounterOpts{
			Name: "chainless_account_locked_total",
			Help: "Logins rejected because the account is locked",
		}),
		CodeRequestedTotal: promauto.NewCounterVec(prometheus.CounterOpts{
			Name: "chainless_verification_code_requested_total",
			Help: "Verification codes issued by usage",
		}, []string{"usage"}),
		TransferStageTotal: promauto.NewCounterVec(prometheus.CounterOpts{
			Name: "chainless_transfer_stage_total",
			Help: "Transfers entering each stage",
		}, []string{"coin", "stage"}),
		TransferAmountTotal: promauto.NewCounterVec(prometheus.CounterOpts{
			Name: "chainless_transfer_amount_total",
			Help: "The total amount of reconfirmed transfers",
		}, []string{"coin"}),
		ManageRecords: promauto.NewCounterVec(prometheus.CounterOpts{
			Name: "chainless_manage_record_total",
			Help: "Finished wallet manage records by operation and status",
		}, []string{"operation", "status"}),
		ChainCallErrors: promauto.NewCounterVec(prometheus.CounterOpts{
			Name: "chainless_chain_call_errors_total",
			Help: "Failed chain submissions and polls",
		}, []string{"method"}),
		ReconcileDuration: promauto.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "chainless_reconcile_job_duration_seconds",
			Help:    "Duration of background reconcile jobs",
			Buckets: prometheus.DefBuckets,
		}, []string{"job"}),
	}
}
