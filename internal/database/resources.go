package database

import "time"

// Account helpers

func ListAccounts() ([]Account, error) {
	var accounts []Account
	if err := DB.Order("name").Find(&accounts).Error; err != nil {
		return nil, err
	}
	return accounts, nil
}

func GetAccount(id uint) (*Account, error) {
	var a Account
	if err := DB.First(&a, id).Error; err != nil {
		return nil, err
	}
	return &a, nil
}

func GetAccountByName(name string) (*Account, error) {
	var a Account
	if err := DB.Where("name = ?", name).First(&a).Error; err != nil {
		return nil, err
	}
	return &a, nil
}

// AccountDependents returns how many domains and tunnels reference the account.
func AccountDependents(id uint) (domains int64, tunnels int64, err error) {
	if err = DB.Model(&Domain{}).Where("account_id = ?", id).Count(&domains).Error; err != nil {
		return
	}
	err = DB.Model(&Tunnel{}).Where("account_id = ?", id).Count(&tunnels).Error
	return
}

// Domain helpers

// ListDomains returns domains of one account, or all domains when accountID is 0.
func ListDomains(accountID uint) ([]Domain, error) {
	var domains []Domain
	q := DB.Order("domain")
	if accountID != 0 {
		q = q.Where("account_id = ?", accountID)
	}
	if err := q.Find(&domains).Error; err != nil {
		return nil, err
	}
	return domains, nil
}

func GetDomain(id uint) (*Domain, error) {
	var d Domain
	if err := DB.First(&d, id).Error; err != nil {
		return nil, err
	}
	return &d, nil
}

func DomainExists(domain string, exceptID uint) (bool, error) {
	var count int64
	q := DB.Model(&Domain{}).Where("domain = ?", domain)
	if exceptID != 0 {
		q = q.Where("id <> ?", exceptID)
	}
	err := q.Count(&count).Error
	return count > 0, err
}

// Tunnel helpers

func ListTunnels() ([]Tunnel, error) {
	var tunnels []Tunnel
	if err := DB.Order("id").Find(&tunnels).Error; err != nil {
		return nil, err
	}
	return tunnels, nil
}

func GetTunnel(id uint) (*Tunnel, error) {
	var t Tunnel
	if err := DB.First(&t, id).Error; err != nil {
		return nil, err
	}
	return &t, nil
}

func GetTunnelByCloudflareID(cfID string) (*Tunnel, error) {
	var t Tunnel
	if err := DB.Where("cloudflare_id = ?", cfID).First(&t).Error; err != nil {
		return nil, err
	}
	return &t, nil
}

func TunnelNameExists(name string, accountID uint) (bool, error) {
	var count int64
	err := DB.Model(&Tunnel{}).Where("name = ? AND account_id = ?", name, accountID).Count(&count).Error
	return count > 0, err
}

func CountRunningTunnels() (int64, error) {
	var count int64
	err := DB.Model(&Tunnel{}).Where("status = ?", TunnelRunning).Count(&count).Error
	return count, err
}

// SetTunnelState records a supervisor transition observed at at. A nil
// uptime clears uptime_started_at; last_activity_at and updated_at are
// always set to at.
func SetTunnelState(id uint, status string, uptime *time.Time, at time.Time) error {
	return DB.Model(&Tunnel{}).Where("id = ?", id).Updates(map[string]interface{}{
		"status":            status,
		"uptime_started_at": uptime,
		"last_activity_at":  &at,
		"updated_at":        at,
	}).Error
}
