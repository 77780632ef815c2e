package shared

import "fmt"

// StockIntegrityLockKey guards the periodic stock integrity scan.
const StockIntegrityLockKey = "lock:stock-integrity"

// StoreWarehouseCacheKey builds the redis key caching a store's fulfilment warehouse.
func StoreWarehouseCacheKey(storeID int64) string {
	return fmt.Sprintf("catalog:store:%d:warehouse", storeID)
}
