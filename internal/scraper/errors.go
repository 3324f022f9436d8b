package scraper

import "errors"

var ErrUnknownSource = errors.New("未知数据源")
