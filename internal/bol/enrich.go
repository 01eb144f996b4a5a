package bol

import (
	"regexp"
	"strings"

	"github.com/vibotaj/tracehub/internal/compliance"
	"github.com/vibotaj/tracehub/internal/models"
)

var locodeRe = regexp.MustCompile(`\b[A-Z]{5}\b`)

// ExtractLOCODE pulls the UN/LOCODE out of a free-text port field: the
// first token that is already five uppercase letters, e.g. "NGAPP" from
// "Apapa (NGAPP)". Mixed-case words never qualify.
func ExtractLOCODE(port string) string {
	return locodeRe.FindString(port)
}

// Enrich back-fills shipment columns from a parsed Bill of Lading and
// returns the names of the fields it changed.
//
// The B/L number is always overwritten. The container number is only
// overwritten when empty or a placeholder. Vessel, voyage, ports, and
// the actual departure date only fill empty fields.
func Enrich(sh *models.Shipment, data *models.CanonicalData) []string {
	if data == nil {
		return nil
	}
	var changed []string
	set := func(field string, dst *string, v string) {
		v = strings.TrimSpace(v)
		if v != "" && *dst != v {
			*dst = v
			changed = append(changed, field)
		}
	}

	if v := strings.TrimSpace(data.BOLNumber); v != "" && sh.BLNumber != v {
		sh.BLNumber = v
		changed = append(changed, "bl_number")
	}
	if len(data.Containers) > 0 &&
		(sh.ContainerNumber == "" || compliance.IsPlaceholder(sh.ContainerNumber)) {
		set("container_number", &sh.ContainerNumber, strings.ToUpper(data.Containers[0]))
	}
	if sh.Vessel == "" {
		set("vessel", &sh.Vessel, data.Vessel)
	}
	if sh.Voyage == "" {
		set("voyage", &sh.Voyage, data.Voyage)
	}
	if sh.POLCode == "" {
		set("pol_code", &sh.POLCode, ExtractLOCODE(data.PortOfLoading))
	}
	if sh.POLName == "" {
		set("pol_name", &sh.POLName, data.PortOfLoading)
	}
	if sh.PODCode == "" {
		set("pod_code", &sh.PODCode, ExtractLOCODE(data.PortOfDischarge))
	}
	if sh.PODName == "" {
		set("pod_name", &sh.PODName, data.PortOfDischarge)
	}
	if sh.ATD == nil && data.ShippedOnBoard != nil {
		t := *data.ShippedOnBoard
		sh.ATD = &t
		changed = append(changed, "atd")
	}
	return changed
}
