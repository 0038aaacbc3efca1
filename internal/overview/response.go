package overview

import "time"

// OverviewResponse is the wire form of a generated overview shared by the
// HTTP and bus surfaces.
type OverviewResponse struct {
	ID                  string    `json:"id"`
	NotebookID          string    `json:"notebook_id,omitempty"`
	Dialogue            string    `json:"dialogue"`
	Transcript          string    `json:"transcript"`
	Segments            []Segment `json:"segments"`
	ProviderUnavailable bool      `json:"provider_unavailable,omitempty"`
	Succeeded           int       `json:"succeeded"`
	Failed              int       `json:"failed"`
	CreatedAt           time.Time `json:"created_at"`
}

func NewOverviewResponse(ov *Overview) OverviewResponse {
	succeeded, failed := ov.Counts()
	segments := ov.Segments
	if segments == nil {
		segments = []Segment{}
	}
	return OverviewResponse{
		ID:                  ov.ID,
		NotebookID:          ov.NotebookID,
		Dialogue:            ov.Dialogue,
		Transcript:          ov.Dialogue,
		Segments:            segments,
		ProviderUnavailable: ov.ProviderUnavailable,
		Succeeded:           succeeded,
		Failed:              failed,
		CreatedAt:           ov.CreatedAt,
	}
}

// Overview converts the response back into the domain type.
func (r OverviewResponse) Overview() *Overview {
	return &Overview{
		ID:                  r.ID,
		NotebookID:          r.NotebookID,
		Dialogue:            r.Dialogue,
		Segments:            r.Segments,
		ProviderUnavailable: r.ProviderUnavailable,
		CreatedAt:           r.CreatedAt,
	}
}

// RetryResponse carries a single re-synthesized segment.
type RetryResponse struct {
	Status Status `json:"status"`
	Audio  []byte `json:"audio,omitempty"`
	Error  string `json:"error,omitempty"`
}

func NewRetryResponse(seg Segment) RetryResponse {
	return RetryResponse{Status: seg.Status, Audio: seg.Audio, Error: seg.Error}
}
