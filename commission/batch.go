package commission

import (
	"fmt"
	"strings"

	"github.com/warp/commission-engine/ingest"
)

// ParseDocType maps the upstream document-type key ("statement",
// "SCHEDULE", ...) to the enumerated DocType.
func ParseDocType(key string) (ingest.DocType, error) {
	switch strings.ToUpper(CleanString(key)) {
	case "STATEMENT":
		return ingest.DocStatement, nil
	case "SCHEDULE":
		return ingest.DocSchedule, nil
	case "TERMINATED":
		return ingest.DocTerminated, nil
	}
	return "", fmt.Errorf("%w: %q", ingest.ErrInvalidDocType, key)
}

// BuildBatch assembles an ingestion batch from raw extracted rows. The
// agent code and month label may be inferred from the rows when the
// caller's values are empty; the month label stays raw here and is
// normalized (or rejected) by the ingest pipeline.
func BuildBatch(docKey string, agent ingest.AgentCode, agentName, fileName, labelHint string, rows []Row) (ingest.Batch, error) {
	doc, err := ParseDocType(docKey)
	if err != nil {
		return ingest.Batch{}, err
	}

	effAgent := InferAgentCode(rows, agent)
	if agentName == "" {
		agentName = string(effAgent)
	}

	batch := ingest.Batch{
		AgentCode: effAgent,
		AgentName: agentName,
		DocType:   doc,
		FileName:  fileName,
		Label:     InferMonthLabel(rows, labelHint),
	}

	switch doc {
	case ingest.DocStatement:
		for _, r := range rows {
			batch.Statements = append(batch.Statements, StatementFromRow(r, effAgent))
		}
	case ingest.DocSchedule:
		for _, r := range rows {
			batch.Schedule = append(batch.Schedule, ScheduleFromRow(r, effAgent, agentName))
		}
	case ingest.DocTerminated:
		for _, r := range rows {
			batch.Terminated = append(batch.Terminated, TerminatedFromRow(r, effAgent))
		}
	}
	return batch, nil
}
