package orchestrator

import (
	"context"
	"log"

	"github.com/IYouKnow/TunnelUI/internal/database"
	"github.com/IYouKnow/TunnelUI/internal/domainres"
	"github.com/IYouKnow/TunnelUI/internal/logutil"
)

const (
	WarnRecordNotFound = "DNS record not found for automatic removal."
	WarnTokenMissing   = "API Token for the account is not configured. DNS record could not be removed automatically. Please add the API Token to the account or remove the DNS record manually."
	WarnZoneMissing    = "Domain Zone ID is not configured. The DNS record could not be removed automatically. Please add the Zone ID to the domain or remove the DNS record manually."
	WarnDomainUnknown  = "Domain principal is not registered in the system. The DNS record could not be removed automatically. Please register the domain with Zone ID and API Token or remove the DNS record manually."
	WarnCleanupFailed  = "Error occurred during DNS record cleanup."
	WarnRecordKept     = "An existing DNS record for this hostname was kept. It may not point to this tunnel."
)

// routableTypes are the record types that block `tunnel route dns`.
var routableTypes = map[string]bool{"A": true, "AAAA": true, "CNAME": true}

// zoneAccess is what is needed to talk to the zone owning a hostname.
type zoneAccess struct {
	domain *database.Domain
	token  string
	// warning explains why access is incomplete; empty when usable.
	warning string
}

// resolveZone finds the domain owning hostname. With accountID 0 every
// registered domain is a candidate and the token comes from the domain's
// own account.
func (o *Orchestrator) resolveZone(hostname string, accountID uint) (zoneAccess, error) {
	candidates, err := database.ListDomains(accountID)
	if err != nil {
		return zoneAccess{}, err
	}
	d := domainres.Resolve(hostname, candidates)
	if d == nil {
		return zoneAccess{warning: WarnDomainUnknown}, nil
	}
	if d.ZoneID == "" {
		return zoneAccess{domain: d, warning: WarnZoneMissing}, nil
	}
	acc, err := database.GetAccount(d.AccountID)
	if err != nil {
		return zoneAccess{domain: d, warning: WarnTokenMissing}, nil
	}
	token, err := accountToken(acc)
	if err != nil {
		return zoneAccess{}, err
	}
	if token == "" {
		return zoneAccess{domain: d, warning: WarnTokenMissing}, nil
	}
	return zoneAccess{domain: d, token: token}, nil
}

// purgeRecords deletes every record listed for hostname within the
// account's zones. It runs on an explicit replace request, so missing
// zone or token data fails the request instead of being skipped.
func (o *Orchestrator) purgeRecords(ctx context.Context, hostname string, accountID uint) (int, error) {
	za, err := o.resolveZone(hostname, accountID)
	if err != nil {
		return 0, err
	}
	if za.warning != "" {
		return 0, remote("Cannot replace the DNS record for "+hostname, nil, za.warning)
	}
	mgr := o.dns(za.domain.ZoneID, za.token)
	records, err := mgr.List(ctx, hostname, "")
	if err != nil {
		return 0, remote("Failed to list existing DNS records", err, "")
	}
	deleted := 0
	for _, rec := range records {
		if err := mgr.Delete(ctx, rec.ID); err != nil {
			return deleted, remote("Failed to delete existing DNS record", err, "")
		}
		deleted++
	}
	log.Printf("[dns] removed %d record(s) for %s", deleted, logutil.SanitizeForLog(hostname))
	return deleted, nil
}

// hasRecords reports whether hostname still has a routable record. When
// the zone cannot be queried the answer is false.
func (o *Orchestrator) hasRecords(ctx context.Context, hostname string, accountID uint) bool {
	za, err := o.resolveZone(hostname, accountID)
	if err != nil || za.warning != "" {
		return false
	}
	records, err := o.dns(za.domain.ZoneID, za.token).List(ctx, hostname, "")
	if err != nil {
		log.Printf("[dns] lookup for %s failed: %v", logutil.SanitizeForLog(hostname), err)
		return false
	}
	for _, rec := range records {
		if routableTypes[rec.Type] {
			return true
		}
	}
	return false
}

// removeTunnelRecord is the best-effort cleanup used on delete. It never
// fails; problems come back as an operator-facing warning.
func (o *Orchestrator) removeTunnelRecord(ctx context.Context, hostname string) (bool, string) {
	za, err := o.resolveZone(hostname, 0)
	if err != nil {
		log.Printf("[dns] resolve zone for %s: %v", logutil.SanitizeForLog(hostname), err)
		return false, WarnCleanupFailed
	}
	if za.warning != "" {
		return false, za.warning
	}
	mgr := o.dns(za.domain.ZoneID, za.token)
	records, err := mgr.List(ctx, hostname, "CNAME")
	if err != nil {
		log.Printf("[dns] list records for %s: %v", logutil.SanitizeForLog(hostname), err)
		return false, WarnCleanupFailed
	}
	if len(records) == 0 {
		return false, WarnRecordNotFound
	}
	for _, rec := range records {
		if err := mgr.Delete(ctx, rec.ID); err != nil {
			log.Printf("[dns] delete record %s for %s: %v", rec.ID, logutil.SanitizeForLog(hostname), err)
			return false, WarnCleanupFailed
		}
	}
	return true, ""
}
