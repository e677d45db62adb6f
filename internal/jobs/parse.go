package jobs

import (
	"github.com/tidwall/gjson"
)

// firstOf returns the first existing key among names. Servers have shipped
// both snake_case and camelCase payloads.
func firstOf(data gjson.Result, names ...string) gjson.Result {
	for _, name := range names {
		if value := data.Get(name); value.Exists() {
			return value
		}
	}
	return gjson.Result{}
}

func parseSnapshot(data gjson.Result, phaseName string) (Snapshot, error) {
	snap := Snapshot{
		BatchIndex:     int(firstOf(data, "batch_index", "batchIndex", "current_batch", "currentBatch").Int()),
		TotalBatches:   int(firstOf(data, "total_batches", "totalBatches").Int()),
		ItemsProcessed: int(firstOf(data, "items_processed", "itemsProcessed", "processed").Int()),
		ItemsTotal:     int(firstOf(data, "items_total", "itemsTotal", "total").Int()),
		InProgress:     firstOf(data, "in_progress", "inProgress", "is_running", "isRunning").Bool(),
		Completed:      firstOf(data, "completed", "isComplete", "is_complete", "complete").Bool(),
		Status:         firstOf(data, "status", "state").String(),
		Message:        firstOf(data, "message", "status_message", "statusMessage").String(),
	}
	if err := snap.normalize(phaseName); err != nil {
		return Snapshot{}, err
	}
	return snap, nil
}

func parseBatchResult(data gjson.Result) BatchResult {
	return BatchResult{
		BatchIndex:   int(firstOf(data, "batch_index", "batchIndex", "current_batch", "currentBatch").Int()),
		TotalBatches: int(firstOf(data, "total_batches", "totalBatches").Int()),
		Message:      firstOf(data, "message").String(),
	}
}
