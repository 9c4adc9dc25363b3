package models

// Redis layout shared by the processor (writer) and the gateway (reader).
const (
	SnapshotKeyPrefix  = "stock:"
	PriceChannelPrefix = "prices."
)

func SnapshotKey(symbol string) string { return SnapshotKeyPrefix + symbol }

func PriceChannel(symbol string) string { return PriceChannelPrefix + symbol }
