package api

import (
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/vibotaj/tracehub/internal/apperr"
	"github.com/vibotaj/tracehub/internal/compliance"
	"github.com/vibotaj/tracehub/internal/lifecycle"
	"github.com/vibotaj/tracehub/internal/models"
	"github.com/vibotaj/tracehub/internal/store"
	"github.com/vibotaj/tracehub/internal/tenant"
)

type createShipmentRequest struct {
	Reference           string             `json:"reference"`
	ProductType         models.ProductType `json:"productType"`
	BuyerOrganizationID string             `json:"buyerOrganizationId,omitempty"`
	ContainerNumber     string             `json:"containerNumber,omitempty"`
	BLNumber            string             `json:"blNumber,omitempty"`
	POLCode             string             `json:"polCode,omitempty"`
	PODCode             string             `json:"podCode,omitempty"`
	Incoterms           string             `json:"incoterms,omitempty"`
	ETD                 *time.Time         `json:"etd,omitempty"`
	ETA                 *time.Time         `json:"eta,omitempty"`
}

func (s *Server) handleCreateShipment(w http.ResponseWriter, r *http.Request) {
	tc, err := requireTenant(r)
	if err != nil {
		writeError(w, r, err)
		return
	}
	if err := tenant.Authorize(tc, tenant.PermShipmentsWrite, tc.OrganizationID, ""); err != nil {
		writeError(w, r, err)
		return
	}
	var req createShipmentRequest
	if err := decodeBody(r, &req); err != nil {
		writeError(w, r, err)
		return
	}
	req.Reference = strings.TrimSpace(req.Reference)
	if req.Reference == "" {
		writeError(w, r, apperr.New(apperr.KindValidation, "shipments.create", "reference is required").WithField("reference"))
		return
	}
	if req.ProductType == "" {
		writeError(w, r, apperr.New(apperr.KindValidation, "shipments.create", "productType is required").WithField("productType"))
		return
	}
	if req.ContainerNumber != "" && !compliance.ValidContainerNumber(strings.ToUpper(req.ContainerNumber)) && !compliance.IsPlaceholder(req.ContainerNumber) {
		writeError(w, r, apperr.New(apperr.KindValidation, "shipments.create", "container number must match ISO 6346").WithField("containerNumber"))
		return
	}
	sh := &models.Shipment{
		ID:                  uuid.NewString(),
		OrganizationID:      tc.OrganizationID,
		BuyerOrganizationID: req.BuyerOrganizationID,
		Reference:           req.Reference,
		ProductType:         req.ProductType,
		ContainerNumber:     strings.ToUpper(strings.TrimSpace(req.ContainerNumber)),
		BLNumber:            strings.TrimSpace(req.BLNumber),
		POLCode:             strings.ToUpper(req.POLCode),
		PODCode:             strings.ToUpper(req.PODCode),
		Incoterms:           req.Incoterms,
		ETD:                 req.ETD,
		ETA:                 req.ETA,
		Status:              models.ShipmentDraft,
	}
	err = s.store.WithSession(r.Context(), tc, func(sess *store.Session) error {
		if err := sess.CreateShipment(r.Context(), sh); err != nil {
			return err
		}
		return sess.AppendAudit(r.Context(), &models.AuditEntry{
			ID:             uuid.NewString(),
			Timestamp:      time.Now().UTC(),
			OrganizationID: tc.OrganizationID,
			UserID:         tc.UserID,
			Action:         "shipment.created",
			ResourceType:   "shipment",
			ResourceID:     sh.ID,
			Details:        map[string]any{"reference": sh.Reference},
		})
	})
	if err != nil {
		writeError(w, r, err)
		return
	}
	s.bus.Publish(r.Context(), &models.Notification{
		OrganizationID: tc.OrganizationID,
		Type:           models.NotifyShipmentCreated,
		Title:          "Shipment " + sh.Reference + " created",
		ResourceType:   "shipment",
		ResourceID:     sh.ID,
	})
	writeJSON(w, http.StatusCreated, sh)
}

func (s *Server) handleListShipments(w http.ResponseWriter, r *http.Request) {
	tc, err := requireTenant(r)
	if err != nil {
		writeError(w, r, err)
		return
	}
	q := r.URL.Query()
	filter := store.ShipmentFilter{
		Status:      models.ShipmentStatus(q.Get("status")),
		ProductType: models.ProductType(q.Get("productType")),
		Reference:   q.Get("reference"),
		Limit:       queryInt(q.Get("limit"), 50),
		Offset:      queryInt(q.Get("offset"), 0),
	}
	var shipments []*models.Shipment
	err = s.store.WithSession(r.Context(), tc, func(sess *store.Session) error {
		shipments, err = sess.ListShipments(r.Context(), filter)
		return err
	})
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"shipments": shipments})
}

func queryInt(v string, def int) int {
	if v == "" {
		return def
	}
	n, err := strconv.Atoi(v)
	if err != nil || n < 0 {
		return def
	}
	return n
}

// getShipmentAuthorized loads the shipment and applies the read or
// write predicate, including the buyer read path.
func (s *Server) getShipmentAuthorized(r *http.Request, sess *store.Session, tc *tenant.Context, id string, perm tenant.Permission) (*models.Shipment, error) {
	sh, err := sess.GetShipment(r.Context(), id)
	if err != nil {
		return nil, err
	}
	if err := tenant.Authorize(tc, perm, sh.OrganizationID, sh.BuyerOrganizationID); err != nil {
		return nil, err
	}
	return sh, nil
}

func (s *Server) handleGetShipment(w http.ResponseWriter, r *http.Request) {
	tc, err := requireTenant(r)
	if err != nil {
		writeError(w, r, err)
		return
	}
	var sh *models.Shipment
	err = s.store.WithSession(r.Context(), tc, func(sess *store.Session) error {
		sh, err = s.getShipmentAuthorized(r, sess, tc, r.PathValue("id"), tenant.PermShipmentsRead)
		return err
	})
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, sh)
}

type updateShipmentRequest struct {
	BuyerOrganizationID *string    `json:"buyerOrganizationId,omitempty"`
	ContainerNumber     *string    `json:"containerNumber,omitempty"`
	BLNumber            *string    `json:"blNumber,omitempty"`
	Vessel              *string    `json:"vessel,omitempty"`
	Voyage              *string    `json:"voyage,omitempty"`
	POLCode             *string    `json:"polCode,omitempty"`
	POLName             *string    `json:"polName,omitempty"`
	PODCode             *string    `json:"podCode,omitempty"`
	PODName             *string    `json:"podName,omitempty"`
	Incoterms           *string    `json:"incoterms,omitempty"`
	ETD                 *time.Time `json:"etd,omitempty"`
	ETA                 *time.Time `json:"eta,omitempty"`
}

func (s *Server) handleUpdateShipment(w http.ResponseWriter, r *http.Request) {
	tc, err := requireTenant(r)
	if err != nil {
		writeError(w, r, err)
		return
	}
	var req updateShipmentRequest
	if err := decodeBody(r, &req); err != nil {
		writeError(w, r, err)
		return
	}
	var sh *models.Shipment
	err = s.store.WithSession(r.Context(), tc, func(sess *store.Session) error {
		if err := sess.LockShipment(r.Context(), r.PathValue("id")); err != nil {
			return err
		}
		sh, err = s.getShipmentAuthorized(r, sess, tc, r.PathValue("id"), tenant.PermShipmentsWrite)
		if err != nil {
			return err
		}
		applyShipmentUpdate(sh, &req)
		if sh.ContainerNumber != "" && !compliance.ValidContainerNumber(sh.ContainerNumber) && !compliance.IsPlaceholder(sh.ContainerNumber) {
			return apperr.New(apperr.KindValidation, "shipments.update", "container number must match ISO 6346").WithField("containerNumber")
		}
		if err := sess.UpdateShipment(r.Context(), sh); err != nil {
			return err
		}
		return sess.AppendAudit(r.Context(), &models.AuditEntry{
			ID:             uuid.NewString(),
			Timestamp:      time.Now().UTC(),
			OrganizationID: sh.OrganizationID,
			UserID:         tc.UserID,
			Action:         "shipment.updated",
			ResourceType:   "shipment",
			ResourceID:     sh.ID,
		})
	})
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, sh)
}

func applyShipmentUpdate(sh *models.Shipment, req *updateShipmentRequest) {
	set := func(dst *string, v *string, upper bool) {
		if v == nil {
			return
		}
		val := strings.TrimSpace(*v)
		if upper {
			val = strings.ToUpper(val)
		}
		*dst = val
	}
	set(&sh.BuyerOrganizationID, req.BuyerOrganizationID, false)
	set(&sh.ContainerNumber, req.ContainerNumber, true)
	set(&sh.BLNumber, req.BLNumber, false)
	set(&sh.Vessel, req.Vessel, false)
	set(&sh.Voyage, req.Voyage, false)
	set(&sh.POLCode, req.POLCode, true)
	set(&sh.POLName, req.POLName, false)
	set(&sh.PODCode, req.PODCode, true)
	set(&sh.PODName, req.PODName, false)
	set(&sh.Incoterms, req.Incoterms, false)
	if req.ETD != nil {
		sh.ETD = req.ETD
	}
	if req.ETA != nil {
		sh.ETA = req.ETA
	}
}

type transitionRequest struct {
	To models.ShipmentStatus `json:"to"`
}

// handleTransitionShipment moves the lifecycle manually, e.g.
// draft → docs_pending or arrived → delivered after handover.
func (s *Server) handleTransitionShipment(w http.ResponseWriter, r *http.Request) {
	tc, err := requireTenant(r)
	if err != nil {
		writeError(w, r, err)
		return
	}
	var req transitionRequest
	if err := decodeBody(r, &req); err != nil {
		writeError(w, r, err)
		return
	}
	var sh *models.Shipment
	err = s.store.WithSession(r.Context(), tc, func(sess *store.Session) error {
		if err := sess.LockShipment(r.Context(), r.PathValue("id")); err != nil {
			return err
		}
		sh, err = s.getShipmentAuthorized(r, sess, tc, r.PathValue("id"), tenant.PermShipmentsWrite)
		if err != nil {
			return err
		}
		if err := lifecycle.ShipmentTransition(sh.Status, req.To); err != nil {
			return err
		}
		from := sh.Status
		if err := sess.UpdateShipmentStatus(r.Context(), sh.ID, req.To); err != nil {
			return err
		}
		sh.Status = req.To
		return sess.AppendAudit(r.Context(), &models.AuditEntry{
			ID:             uuid.NewString(),
			Timestamp:      time.Now().UTC(),
			OrganizationID: sh.OrganizationID,
			UserID:         tc.UserID,
			Action:         "shipment.status_changed",
			ResourceType:   "shipment",
			ResourceID:     sh.ID,
			Details:        map[string]any{"from": string(from), "to": string(req.To)},
		})
	})
	if err != nil {
		writeError(w, r, err)
		return
	}
	if sh.Status == models.ShipmentDelivered {
		s.bus.Publish(r.Context(), &models.Notification{
			OrganizationID: sh.OrganizationID,
			Type:           models.NotifyShipmentDelivered,
			Title:          "Shipment " + sh.Reference + " delivered",
			ResourceType:   "shipment",
			ResourceID:     sh.ID,
		})
	}
	writeJSON(w, http.StatusOK, sh)
}

type addProductRequest struct {
	HSCode          string  `json:"hsCode"`
	Description     string  `json:"description,omitempty"`
	QuantityNetKg   float64 `json:"quantityNetKg,omitempty"`
	QuantityGrossKg float64 `json:"quantityGrossKg,omitempty"`
}

func (s *Server) handleAddProduct(w http.ResponseWriter, r *http.Request) {
	tc, err := requireTenant(r)
	if err != nil {
		writeError(w, r, err)
		return
	}
	var req addProductRequest
	if err := decodeBody(r, &req); err != nil {
		writeError(w, r, err)
		return
	}
	if strings.TrimSpace(req.HSCode) == "" {
		writeError(w, r, apperr.New(apperr.KindValidation, "products.create", "hsCode is required").WithField("hsCode"))
		return
	}
	p := &models.Product{
		ID:              uuid.NewString(),
		ShipmentID:      r.PathValue("id"),
		OrganizationID:  tc.OrganizationID,
		HSCode:          strings.TrimSpace(req.HSCode),
		Description:     req.Description,
		QuantityNetKg:   req.QuantityNetKg,
		QuantityGrossKg: req.QuantityGrossKg,
	}
	err = s.store.WithSession(r.Context(), tc, func(sess *store.Session) error {
		if _, err := s.getShipmentAuthorized(r, sess, tc, p.ShipmentID, tenant.PermShipmentsWrite); err != nil {
			return err
		}
		return sess.CreateProduct(r.Context(), p)
	})
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, p)
}

func (s *Server) handleListProducts(w http.ResponseWriter, r *http.Request) {
	tc, err := requireTenant(r)
	if err != nil {
		writeError(w, r, err)
		return
	}
	var products []*models.Product
	err = s.store.WithSession(r.Context(), tc, func(sess *store.Session) error {
		if _, err := s.getShipmentAuthorized(r, sess, tc, r.PathValue("id"), tenant.PermShipmentsRead); err != nil {
			return err
		}
		products, err = sess.ListProducts(r.Context(), r.PathValue("id"))
		return err
	})
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"products": products})
}

type addOriginRequest struct {
	ProductID           string     `json:"productId"`
	FarmPlotIdentifier  string     `json:"farmPlotIdentifier,omitempty"`
	Latitude            float64    `json:"latitude"`
	Longitude           float64    `json:"longitude"`
	Polygon             string     `json:"polygon,omitempty"`
	Country             string     `json:"country,omitempty"`
	ProductionStartDate *time.Time `json:"productionStartDate,omitempty"`
	ProductionEndDate   *time.Time `json:"productionEndDate,omitempty"`
	DeforestationFree   string     `json:"deforestationFreeStatement,omitempty"`
}

// handleAddOrigin records EUDR geolocation evidence. The database
// trigger rejects origins on excluded product classes; that surfaces
// here as a validation error.
func (s *Server) handleAddOrigin(w http.ResponseWriter, r *http.Request) {
	tc, err := requireTenant(r)
	if err != nil {
		writeError(w, r, err)
		return
	}
	var req addOriginRequest
	if err := decodeBody(r, &req); err != nil {
		writeError(w, r, err)
		return
	}
	if req.ProductID == "" {
		writeError(w, r, apperr.New(apperr.KindValidation, "origins.create", "productId is required").WithField("productId"))
		return
	}
	o := &models.Origin{
		ID:                  uuid.NewString(),
		ShipmentID:          r.PathValue("id"),
		ProductID:           req.ProductID,
		OrganizationID:      tc.OrganizationID,
		FarmPlotIdentifier:  req.FarmPlotIdentifier,
		Latitude:            req.Latitude,
		Longitude:           req.Longitude,
		Polygon:             req.Polygon,
		Country:             req.Country,
		ProductionStartDate: req.ProductionStartDate,
		ProductionEndDate:   req.ProductionEndDate,
		DeforestationFree:   req.DeforestationFree,
	}
	err = s.store.WithSession(r.Context(), tc, func(sess *store.Session) error {
		if _, err := s.getShipmentAuthorized(r, sess, tc, o.ShipmentID, tenant.PermShipmentsWrite); err != nil {
			return err
		}
		return sess.CreateOrigin(r.Context(), o)
	})
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, o)
}

func (s *Server) handleListOrigins(w http.ResponseWriter, r *http.Request) {
	tc, err := requireTenant(r)
	if err != nil {
		writeError(w, r, err)
		return
	}
	var origins []*models.Origin
	err = s.store.WithSession(r.Context(), tc, func(sess *store.Session) error {
		if _, err := s.getShipmentAuthorized(r, sess, tc, r.PathValue("id"), tenant.PermShipmentsRead); err != nil {
			return err
		}
		origins, err = sess.ListOrigins(r.Context(), r.PathValue("id"))
		return err
	})
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"origins": origins})
}
