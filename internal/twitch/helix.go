package twitch

import (
	"context"
	"net/url"
	"strconv"
)

// GetCurrentUser returns the profile the token belongs to.
func (c *Client) GetCurrentUser(ctx context.Context, token string) (*User, error) {
	body, status, err := c.doRequest(ctx, token, "/users", nil)
	if err != nil {
		return nil, wrapError("getCurrentUser", status, err)
	}
	resp, err := decode[page[User]]("getCurrentUser", status, body)
	if err != nil {
		return nil, err
	}
	if len(resp.Data) == 0 {
		return nil, wrapError("getCurrentUser", status, ErrNotFound)
	}
	return &resp.Data[0], nil
}

// GetFollowedChannels walks the cursor until the whole follow list is read.
func (c *Client) GetFollowedChannels(ctx context.Context, token, userID string) ([]Follow, error) {
	var out []Follow
	cursor := ""
	for {
		query := url.Values{}
		query.Set("user_id", userID)
		query.Set("first", strconv.Itoa(maxBatchSize))
		if cursor != "" {
			query.Set("after", cursor)
		}

		body, status, err := c.doRequest(ctx, token, "/channels/followed", query)
		if err != nil {
			return nil, wrapError("getFollowed", status, err)
		}
		resp, err := decode[page[Follow]]("getFollowed", status, body)
		if err != nil {
			return nil, err
		}
		out = append(out, resp.Data...)

		if resp.Pagination.Cursor == "" || resp.Pagination.Cursor == cursor || len(resp.Data) == 0 {
			return out, nil
		}
		cursor = resp.Pagination.Cursor
	}
}

// GetFollowedChannel reports whether userID follows broadcasterID. A nil
// Follow with a nil error means it does not.
func (c *Client) GetFollowedChannel(ctx context.Context, token, userID, broadcasterID string) (*Follow, error) {
	query := url.Values{}
	query.Set("user_id", userID)
	query.Set("broadcaster_id", broadcasterID)

	body, status, err := c.doRequest(ctx, token, "/channels/followed", query)
	if err != nil {
		return nil, wrapError("getFollowedChannel", status, err)
	}
	resp, err := decode[page[Follow]]("getFollowedChannel", status, body)
	if err != nil {
		return nil, err
	}
	for i := range resp.Data {
		if resp.Data[i].BroadcasterID == broadcasterID {
			return &resp.Data[i], nil
		}
	}
	return nil, nil
}

// GetUsersByID fetches profiles in batches.
func (c *Client) GetUsersByID(ctx context.Context, token string, ids []string) ([]User, error) {
	return c.batchedUsers(ctx, token, "id", ids)
}

// GetUsersByLogin fetches profiles by login in batches.
func (c *Client) GetUsersByLogin(ctx context.Context, token string, logins []string) ([]User, error) {
	return c.batchedUsers(ctx, token, "login", logins)
}

func (c *Client) batchedUsers(ctx context.Context, token, param string, values []string) ([]User, error) {
	out := make([]User, 0, len(values))
	for _, batch := range chunks(values, c.batchSize) {
		query := url.Values{param: batch}
		body, status, err := c.doRequest(ctx, token, "/users", query)
		if err != nil {
			return nil, wrapError("getUsers", status, err)
		}
		resp, err := decode[page[User]]("getUsers", status, body)
		if err != nil {
			return nil, err
		}
		out = append(out, resp.Data...)
	}
	return out, nil
}

// GetStreams returns live streams for the given user ids. Offline users are absent.
func (c *Client) GetStreams(ctx context.Context, token string, userIDs []string) ([]Stream, error) {
	out := make([]Stream, 0)
	for _, batch := range chunks(userIDs, c.batchSize) {
		query := url.Values{"user_id": batch}
		query.Set("first", strconv.Itoa(maxBatchSize))
		body, status, err := c.doRequest(ctx, token, "/streams", query)
		if err != nil {
			return nil, wrapError("getStreams", status, err)
		}
		resp, err := decode[page[Stream]]("getStreams", status, body)
		if err != nil {
			return nil, err
		}
		for _, s := range resp.Data {
			if s.IsLive() {
				out = append(out, s)
			}
		}
	}
	return out, nil
}
