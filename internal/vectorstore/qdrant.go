package vectorstore

import (
	"context"
	"fmt"
	"net"
	"strconv"

	"github.com/qdrant/go-client/qdrant"
)

// QdrantStore implements VectorStore using Qdrant
type QdrantStore struct {
	client *qdrant.Client
}

// NewQdrantStore creates a new Qdrant vector store client.
// url should be in format "host:port" (e.g., "localhost:6334")
func NewQdrantStore(ctx context.Context, url string) (*QdrantStore, error) {
	host, portStr, err := net.SplitHostPort(url)
	if err != nil {
		// If no port specified, assume default
		host = url
		portStr = "6334"
	}

	port, err := strconv.Atoi(portStr)
	if err != nil {
		return nil, fmt.Errorf("invalid port in qdrant url: %w", err)
	}

	client, err := qdrant.NewClient(&qdrant.Config{
		Host: host,
		Port: port,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create qdrant client: %w", err)
	}

	return &QdrantStore{client: client}, nil
}

// Close closes the Qdrant client connection
func (s *QdrantStore) Close() error {
	return s.client.Close()
}

// collectionName returns the collection name for a user's namespace
func (s *QdrantStore) collectionName(userID string) string {
	return fmt.Sprintf("tenant_%s", userID)
}

// EnsureCollection creates the user's collection if it does not exist
func (s *QdrantStore) EnsureCollection(ctx context.Context, userID string, dimension int) error {
	name := s.collectionName(userID)

	exists, err := s.client.CollectionExists(ctx, name)
	if err != nil {
		return fmt.Errorf("failed to check collection existence: %w", err)
	}
	if exists {
		return nil
	}

	err = s.client.CreateCollection(ctx, &qdrant.CreateCollection{
		CollectionName: name,
		VectorsConfig: qdrant.NewVectorsConfig(&qdrant.VectorParams{
			Size:     uint64(dimension),
			Distance: qdrant.Distance_Cosine,
		}),
	})
	if err != nil {
		return fmt.Errorf("failed to create collection: %w", err)
	}

	return nil
}

// Upsert inserts or updates profile vectors in the user's namespace
func (s *QdrantStore) Upsert(ctx context.Context, userID string, points []Point) error {
	if len(points) == 0 {
		return nil
	}

	name := s.collectionName(userID)

	qpoints := make([]*qdrant.PointStruct, len(points))
	for i, p := range points {
		qpoints[i] = &qdrant.PointStruct{
			Id:      qdrant.NewIDUUID(p.ID),
			Vectors: qdrant.NewVectors(p.Vector...),
			Payload: metadataPayload(p.Meta),
		}
	}

	_, err := s.client.Upsert(ctx, &qdrant.UpsertPoints{
		CollectionName: name,
		Points:         qpoints,
	})
	if err != nil {
		return fmt.Errorf("failed to upsert points: %w", err)
	}

	return nil
}

// Query performs filtered nearest-neighbor search within the user's namespace
func (s *QdrantStore) Query(ctx context.Context, userID string, vector []float32, topK int, filter *SearchFilter) ([]Candidate, error) {
	name := s.collectionName(userID)

	req := &qdrant.QueryPoints{
		CollectionName: name,
		Query:          qdrant.NewQuery(vector...),
		Limit:          qdrant.PtrOf(uint64(topK)),
	}
	if qf := buildFilter(filter); qf != nil {
		req.Filter = qf
	}

	response, err := s.client.Query(ctx, req)
	if err != nil {
		return nil, fmt.Errorf("failed to search: %w", err)
	}

	candidates := make([]Candidate, 0, len(response))
	for _, point := range response {
		candidates = append(candidates, Candidate{
			ID:    point.Id.GetUuid(),
			Score: point.Score,
		})
	}

	return candidates, nil
}

// DeletePoints removes profile vectors by canonical id
func (s *QdrantStore) DeletePoints(ctx context.Context, userID string, ids []string) error {
	if len(ids) == 0 {
		return nil
	}

	name := s.collectionName(userID)

	pointIDs := make([]*qdrant.PointId, len(ids))
	for i, id := range ids {
		pointIDs[i] = qdrant.NewIDUUID(id)
	}

	_, err := s.client.Delete(ctx, &qdrant.DeletePoints{
		CollectionName: name,
		Points: &qdrant.PointsSelector{
			PointsSelectorOneOf: &qdrant.PointsSelector_Points{
				Points: &qdrant.PointsIdsList{
					Ids: pointIDs,
				},
			},
		},
	})
	if err != nil {
		return fmt.Errorf("failed to delete points: %w", err)
	}

	return nil
}

// metadataPayload converts filterable metadata into a qdrant payload
func metadataPayload(m Metadata) map[string]*qdrant.Value {
	payload := map[string]*qdrant.Value{
		"industry":         qdrant.NewValueString(m.Industry),
		"company_size":     qdrant.NewValueString(m.CompanySize),
		"city":             qdrant.NewValueString(m.City),
		"state":            qdrant.NewValueString(m.State),
		"country":          qdrant.NewValueString(m.Country),
		"geo_location":     qdrant.NewValueString(m.GeoLocation),
		"followers":        qdrant.NewValueInt(m.Followers),
		"hiring_status":    qdrant.NewValueString(m.HiringStatus),
		"is_hiring":        qdrant.NewValueBool(m.IsHiring),
		"is_open_to_work":  qdrant.NewValueBool(m.IsOpenToWork),
		"is_company_owner": qdrant.NewValueBool(m.IsCompanyOwner),
		"has_pe_vc_role":   qdrant.NewValueBool(m.HasPEVCRole),
	}
	if m.ConnectedAt > 0 {
		payload["connected_at"] = qdrant.NewValueInt(m.ConnectedAt)
	}
	return payload
}

// buildFilter translates the typed filter into a qdrant metadata predicate:
// list fields become value-in-set matches, locations expand into an OR
// across city/state/country, booleans become equality clauses, and the
// follower/date bounds become numeric ranges. The legacy hiring_status enum
// is translated into the equivalent boolean clause unless the independent
// flag for the same field is present, in which case the flag wins.
func buildFilter(f *SearchFilter) *qdrant.Filter {
	if f.IsZero() {
		return nil
	}

	var must []*qdrant.Condition

	if len(f.Industries) > 0 {
		must = append(must, qdrant.NewMatchKeywords("industry", f.Industries...))
	}
	if len(f.CompanySizes) > 0 {
		must = append(must, qdrant.NewMatchKeywords("company_size", f.CompanySizes...))
	}

	if len(f.Locations) > 0 {
		// Any of the location values may match any of the three fields.
		should := make([]*qdrant.Condition, 0, 3)
		should = append(should,
			qdrant.NewMatchKeywords("city", f.Locations...),
			qdrant.NewMatchKeywords("state", f.Locations...),
			qdrant.NewMatchKeywords("country", f.Locations...),
		)
		must = append(must, &qdrant.Condition{
			ConditionOneOf: &qdrant.Condition_Filter{
				Filter: &qdrant.Filter{Should: should},
			},
		})
	}

	if f.GeoLocation != "" {
		must = append(must, qdrant.NewMatch("geo_location", f.GeoLocation))
	}

	if f.MinFollowers != nil || f.MaxFollowers != nil {
		r := &qdrant.Range{}
		if f.MinFollowers != nil {
			r.Gte = qdrant.PtrOf(float64(*f.MinFollowers))
		}
		if f.MaxFollowers != nil {
			r.Lte = qdrant.PtrOf(float64(*f.MaxFollowers))
		}
		must = append(must, qdrant.NewRange("followers", r))
	}

	if f.ConnectedAfter != nil || f.ConnectedBefore != nil {
		r := &qdrant.Range{}
		if f.ConnectedAfter != nil {
			r.Gte = qdrant.PtrOf(float64(f.ConnectedAfter.Unix()))
		}
		if f.ConnectedBefore != nil {
			r.Lte = qdrant.PtrOf(float64(f.ConnectedBefore.Unix()))
		}
		must = append(must, qdrant.NewRange("connected_at", r))
	}

	switch {
	case f.IsHiring != nil:
		must = append(must, qdrant.NewMatchBool("is_hiring", *f.IsHiring))
	case f.HiringStatus == "hiring":
		must = append(must, qdrant.NewMatchBool("is_hiring", true))
	}

	switch {
	case f.IsOpenToWork != nil:
		must = append(must, qdrant.NewMatchBool("is_open_to_work", *f.IsOpenToWork))
	case f.HiringStatus == "open_to_work":
		must = append(must, qdrant.NewMatchBool("is_open_to_work", true))
	}

	if f.IsCompanyOwner != nil {
		must = append(must, qdrant.NewMatchBool("is_company_owner", *f.IsCompanyOwner))
	}
	if f.HasPEVCRole != nil {
		must = append(must, qdrant.NewMatchBool("has_pe_vc_role", *f.HasPEVCRole))
	}

	if len(must) == 0 {
		return nil
	}
	return &qdrant.Filter{Must: must}
}

// Ensure QdrantStore implements VectorStore
var _ VectorStore = (*QdrantStore)(nil)
