package service

import "time"

// timeNow 测试中可替换
var timeNow = time.Now
