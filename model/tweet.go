package model

import (
	"encoding/json"

	"github.com/pkg/errors"
)

// Tweet is a post as delivered by the twitterapi.io webhook and search API.
// Unknown fields are ignored.
type Tweet struct {
	Id              string  `json:"id"`
	Text            string  `json:"text"`
	Url             string  `json:"url,omitempty"`
	TwitterUrl      string  `json:"twitterUrl,omitempty"`
	CreatedAt       string  `json:"createdAt,omitempty"`
	InReplyToId     string  `json:"inReplyToId,omitempty"`
	InReplyToUserId string  `json:"inReplyToUserId,omitempty"`
	RetweetCount    int     `json:"retweetCount,omitempty"`
	LikeCount       int     `json:"likeCount,omitempty"`
	ReplyCount      int     `json:"replyCount,omitempty"`
	Author          *Author `json:"author,omitempty"`
}

type Author struct {
	Id         string `json:"id,omitempty"`
	UserName   string `json:"userName,omitempty"`
	Name       string `json:"name,omitempty"`
	Url        string `json:"url,omitempty"`
	TwitterUrl string `json:"twitterUrl,omitempty"`
}

// ToPost converts the wire representation into the pipeline's Post.
func (t Tweet) ToPost() Post {
	p := Post{
		Id:           t.Id,
		Text:         t.Text,
		CreatedAtRaw: t.CreatedAt,
		CreatedAt:    ParsePostTime(t.CreatedAt),
		InReplyToId:  t.InReplyToId,
	}
	if t.Author != nil {
		p.AuthorHandle = t.Author.UserName
		p.AuthorName = t.Author.Name
	}
	switch {
	case t.TwitterUrl != "":
		p.Url = t.TwitterUrl
	case t.Url != "":
		p.Url = t.Url
	default:
		p.Url = FallbackPostUrl(p.AuthorHandle, p.Id)
	}
	return p
}

// UnmarshalJSON accepts id fields as JSON strings or numbers.
func (t *Tweet) UnmarshalJSON(data []byte) error {
	type plain Tweet
	aux := struct {
		*plain
		Id              json.RawMessage `json:"id"`
		InReplyToId     json.RawMessage `json:"inReplyToId"`
		InReplyToUserId json.RawMessage `json:"inReplyToUserId"`
	}{plain: (*plain)(t)}
	if err := json.Unmarshal(data, &aux); err != nil {
		return err
	}

	var err error
	if t.Id, err = idString(aux.Id); err != nil {
		return errors.Wrap(err, "id")
	}
	if t.InReplyToId, err = idString(aux.InReplyToId); err != nil {
		return errors.Wrap(err, "inReplyToId")
	}
	if t.InReplyToUserId, err = idString(aux.InReplyToUserId); err != nil {
		return errors.Wrap(err, "inReplyToUserId")
	}
	return nil
}

func (a *Author) UnmarshalJSON(data []byte) error {
	type plain Author
	aux := struct {
		*plain
		Id json.RawMessage `json:"id"`
	}{plain: (*plain)(a)}
	if err := json.Unmarshal(data, &aux); err != nil {
		return err
	}

	var err error
	if a.Id, err = idString(aux.Id); err != nil {
		return errors.Wrap(err, "author id")
	}
	return nil
}

// idString keeps the literal digits of numeric ids, which can exceed float64 precision.
func idString(raw json.RawMessage) (string, error) {
	if len(raw) == 0 || string(raw) == "null" {
		return "", nil
	}
	if raw[0] == '"' {
		var s string
		err := json.Unmarshal(raw, &s)
		return s, err
	}
	var n json.Number
	if err := json.Unmarshal(raw, &n); err != nil {
		return "", errors.Errorf("expected string or number, got %s", raw)
	}
	return n.String(), nil
}
