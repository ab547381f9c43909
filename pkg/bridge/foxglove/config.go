package foxglove

const SampleSchema = `{
  "type": "object",
  "properties": {
    "source": { "type": "string" },
    "ts": { "type": "string" },
    "type": { "type": "string" },
    "seq": { "type": "integer" },
    "hw_ts": { "type": "integer" },
    "dt": { "type": "number" },
    "gap": { "type": "boolean" },
    "data": { "type": "object", "additionalProperties": true }
  },
  "required": ["source", "seq", "dt"]
}`

const RejectionSchema = `{
  "type": "object",
  "properties": {
    "source": { "type": "string" },
    "ts": { "type": "string" },
    "reason": { "type": "string" },
    "error": { "type": "string" },
    "raw_hex": { "type": "string" }
  },
  "required": ["source", "reason"]
}`

const StatsSchema = `{
  "type": "object",
  "properties": {
    "total": { "type": "integer" },
    "accepted": { "type": "integer" },
    "gaps": { "type": "integer" },
    "pps": { "type": "integer" },
    "rejected": { "type": "object", "additionalProperties": true }
  },
  "required": ["total", "accepted"]
}`

type Config struct {
	WSAddr string
	Name   string

	SampleTopic        string
	SampleChannelID    uint64
	RejectionTopic     string
	RejectionChannelID uint64
	StatsTopic         string
	StatsChannelID     uint64
	TransformTopic     string
	TransformChannelID uint64

	ParentFrameID string
	FrameID       string

	SendBuf int
}

func DefaultConfig() Config {
	return Config{
		WSAddr:             "127.0.0.1:8765",
		Name:               "ahrsmon",
		SampleTopic:        "ahrsmon/sample",
		SampleChannelID:    1,
		RejectionTopic:     "ahrsmon/rejection",
		RejectionChannelID: 2,
		StatsTopic:         "ahrsmon/stats",
		StatsChannelID:     3,
		TransformTopic:     "ahrsmon/tf",
		TransformChannelID: 4,
		ParentFrameID:      "world",
		FrameID:            "imu",
		SendBuf:            256,
	}
}
