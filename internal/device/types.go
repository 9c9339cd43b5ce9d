package device

// Record is one approved device.
type Record struct {
	ID           string `json:"id"`
	Username     string `json:"username"`
	Password     string `json:"password"`
	Expire       string `json:"expire"`
	AllowOffline bool   `json:"allowoffline"`
}

// storeFile is the on-disk document.
type storeFile struct {
	Users []Record `json:"users"`
}
