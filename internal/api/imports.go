package api

import (
	"mime/multipart"
	"net/http"
	"strconv"

	"github.com/rotisserie/eris"

	"github.com/sells-group/gmv-tracker/internal/model"
	"github.com/sells-group/gmv-tracker/internal/reconcile"
	"github.com/sells-group/gmv-tracker/internal/report"
)

// importReport handles a multipart upload with "ads" and "fulfillment" files.
// Form fields year and week are required; fee rates, target_margin, policy,
// top_n, notes and replace fall back to the server defaults.
func (s *Server) importReport(w http.ResponseWriter, r *http.Request) {
	if err := r.ParseMultipartForm(maxUploadBytes); err != nil {
		writeError(w, http.StatusBadRequest, "INVALID_INPUT", "expected multipart form")
		return
	}
	defer r.MultipartForm.RemoveAll() //nolint:errcheck

	req, err := s.importRequest(r.MultipartForm)
	if err != nil {
		writeError(w, http.StatusBadRequest, "INVALID_INPUT", err.Error())
		return
	}

	ads, adsName, err := formFile(r, "ads")
	if err != nil {
		writeError(w, http.StatusBadRequest, "INVALID_INPUT", err.Error())
		return
	}
	defer ads.Close() //nolint:errcheck
	ful, fulName, err := formFile(r, "fulfillment")
	if err != nil {
		writeError(w, http.StatusBadRequest, "INVALID_INPUT", err.Error())
		return
	}
	defer ful.Close() //nolint:errcheck

	req.Ads = report.Source{Name: adsName, Body: ads}
	req.Fulfillment = report.Source{Name: fulName, Body: ful}

	res, err := s.reports.Import(r.Context(), req)
	if err != nil {
		writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, res)
}

func formFile(r *http.Request, field string) (multipart.File, string, error) {
	f, hdr, err := r.FormFile(field)
	if err != nil {
		return nil, "", eris.Errorf("%s file is required", field)
	}
	return f, hdr.Filename, nil
}

// importRequest reads the non-file form fields.
func (s *Server) importRequest(form *multipart.Form) (report.ImportRequest, error) {
	value := func(key string) string {
		if vs := form.Value[key]; len(vs) > 0 {
			return vs[0]
		}
		return ""
	}
	number := func(key string, dst *float64) error {
		raw := value(key)
		if raw == "" {
			return nil
		}
		v, err := strconv.ParseFloat(raw, 64)
		if err != nil {
			return eris.Errorf("%s must be a number", key)
		}
		*dst = v
		return nil
	}

	req := report.ImportRequest{
		Fees:   s.opts.Fees,
		Policy: s.opts.Policy,
		TopN:   s.opts.TopN,
		Notes:  value("notes"),
	}

	year, err := strconv.Atoi(value("year"))
	if err != nil {
		return req, eris.New("year is required")
	}
	week, err := strconv.Atoi(value("week"))
	if err != nil {
		return req, eris.New("week is required")
	}
	req.Week = model.NewWeek(year, week)

	for key, dst := range map[string]*float64{
		"commission_rate":  &req.Fees.CommissionRate,
		"transaction_rate": &req.Fees.TransactionRate,
		"payment_rate":     &req.Fees.PaymentRate,
		"target_margin":    &req.Fees.TargetMargin,
	} {
		if err := number(key, dst); err != nil {
			return req, err
		}
	}

	if raw := value("policy"); raw != "" {
		p, err := reconcile.ParsePolicy(raw)
		if err != nil {
			return req, err
		}
		req.Policy = p
	}
	if raw := value("top_n"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil || n < 1 {
			return req, eris.New("top_n must be a positive integer")
		}
		req.TopN = n
	}
	if raw := value("replace"); raw != "" {
		b, err := strconv.ParseBool(raw)
		if err != nil {
			return req, eris.New("replace must be a boolean")
		}
		req.Replace = b
	}
	return req, nil
}
