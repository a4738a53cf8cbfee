package observability

import (
	"github.com/prometheus/client_golang/prometheus"
)

// Domain groups the invoicing business counters.
type Domain struct {
	documentsCreated *prometheus.CounterVec
	conversions      *prometheus.CounterVec
	allocations      *prometheus.CounterVec
	pdfRenders       *prometheus.CounterVec
}

func newDomain(reg prometheus.Registerer) *Domain {
	d := &Domain{
		documentsCreated: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "invoicing_documents_created_total",
			Help: "Documents created by document type.",
		}, []string{"doc_type"}),
		conversions: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "invoicing_estimate_conversions_total",
			Help: "Estimate to invoice conversion attempts by result.",
		}, []string{"result"}),
		allocations: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "invoicing_payment_allocations_total",
			Help: "Payment allocation attempts by result.",
		}, []string{"result"}),
		pdfRenders: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "invoicing_pdf_renders_total",
			Help: "PDF requests by outcome (cache_hit, rendered, error).",
		}, []string{"outcome"}),
	}
	reg.MustRegister(d.documentsCreated, d.conversions, d.allocations, d.pdfRenders)
	return d
}

// DocumentCreated counts a committed document of docType.
func (d *Domain) DocumentCreated(docType string) {
	if d == nil {
		return
	}
	d.documentsCreated.WithLabelValues(docType).Inc()
}

// Conversion counts a conversion attempt; result is "ok" or an error class.
func (d *Domain) Conversion(result string) {
	if d == nil {
		return
	}
	d.conversions.WithLabelValues(result).Inc()
}

// Allocation counts an allocation attempt.
func (d *Domain) Allocation(result string) {
	if d == nil {
		return
	}
	d.allocations.WithLabelValues(result).Inc()
}

// PDFRender counts a PDF request outcome.
func (d *Domain) PDFRender(outcome string) {
	if d == nil {
		return
	}
	d.pdfRenders.WithLabelValues(outcome).Inc()
}
